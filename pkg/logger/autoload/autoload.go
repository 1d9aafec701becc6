// Package autoload initializes the global logger from the LOG-prefixed
// environment when blank-imported.
package autoload

import (
	configx "github.com/ringlet/callbook/pkg/config"
	logx "github.com/ringlet/callbook/pkg/logger"
)

func init() {
	cfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*cfg)
}

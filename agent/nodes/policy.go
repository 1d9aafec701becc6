package orchestratornode

import (
	"time"

	validatex "github.com/ringlet/callbook/agent/validate"
)

// Policy carries the tunables the step handlers consult on every turn.
type Policy struct {
	// MaxAttempts is the per-field bound before the degraded path fires.
	MaxAttempts int
	// HistoryWindow caps the trailing messages handed to extractors.
	HistoryWindow int
	// DispatchRetries is how many extra notifier attempts follow the first.
	DispatchRetries int
	// Hours is the bookable daily window.
	Hours validatex.Hours
	// Location anchors relative time expressions.
	Location *time.Location
}

func (p Policy) Normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.HistoryWindow <= 0 {
		p.HistoryWindow = 8
	}
	if p.DispatchRetries < 0 {
		p.DispatchRetries = 0
	}
	if p.Hours.Close <= p.Hours.Open {
		p.Hours = validatex.DefaultHours
	}
	if p.Location == nil {
		p.Location = time.UTC
	}
	return p
}

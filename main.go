package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	orchestratorx "github.com/ringlet/callbook/agent/agents/orchestrator"
	bookingx "github.com/ringlet/callbook/agent/booking"
	catalogx "github.com/ringlet/callbook/agent/catalog"
	contractx "github.com/ringlet/callbook/agent/contract"
	extractx "github.com/ringlet/callbook/agent/extract"
	llmx "github.com/ringlet/callbook/agent/llm"
	promptx "github.com/ringlet/callbook/agent/prompt"
	statex "github.com/ringlet/callbook/agent/state"
	validatex "github.com/ringlet/callbook/agent/validate"
	configx "github.com/ringlet/callbook/pkg/config"
	dispatchx "github.com/ringlet/callbook/pkg/dispatch"
	_ "github.com/ringlet/callbook/pkg/logger/autoload"
	openrouterx "github.com/ringlet/callbook/pkg/openrouter"
	postgresx "github.com/ringlet/callbook/pkg/postgres"
	redisx "github.com/ringlet/callbook/pkg/redis"
)

type AppConfig struct {
	MaxAttempts       int           `envconfig:"MAX_ATTEMPTS" default:"3"`
	DispatchRetries   int           `envconfig:"DISPATCH_RETRY_COUNT" default:"2"`
	ServiceHoursOpen  int           `envconfig:"SERVICE_HOURS_OPEN" default:"8"`
	ServiceHoursClose int           `envconfig:"SERVICE_HOURS_CLOSE" default:"18"`
	Timezone          string        `envconfig:"TIMEZONE" default:"UTC"`
	LeaseTTL          time.Duration `envconfig:"LEASE_TTL" default:"15s"`
	CatalogPath       string        `envconfig:"CATALOG_PATH"`
	PostgresDSN       string        `envconfig:"POSTGRES_DSN"`
}

func main() {
	appCfg := configx.MustNew[AppConfig]("")

	redisCfg := configx.MustNew[redisx.Config]("REDIS")
	rdb := redisCfg.MustNew()

	store, err := statex.NewRedisCallStore(rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("state store init failed")
	}
	leaser, err := statex.NewRedisLeaser(rdb, statex.WithLeaseTTL(appCfg.LeaseTTL))
	if err != nil {
		log.Fatal().Err(err).Msg("leaser init failed")
	}

	openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")
	openRouterClient := openrouterx.NewClient(*openRouterCfg)
	if openRouterClient == nil {
		log.Fatal().Msg("openrouter client init failed")
	}
	llmClient, err := llmx.New(openRouterClient, *openRouterCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("llm client init failed")
	}

	registry, err := extractx.NewRegistry(llmClient, promptx.LoadPromptSet())
	if err != nil {
		log.Fatal().Err(err).Msg("extractor registry init failed")
	}

	dispatchCfg := configx.MustNew[dispatchx.Config]("DISPATCH")
	notifier := dispatchx.NewClient(*dispatchCfg)

	var ledger contractx.Ledger
	if appCfg.PostgresDSN != "" {
		db := postgresx.MustNew(postgresx.Config{DSN: appCfg.PostgresDSN, PingTimeout: 5 * time.Second})
		ledger, err = bookingx.NewPostgresLedger(context.Background(), db)
		if err != nil {
			log.Fatal().Err(err).Msg("booking ledger init failed")
		}
	} else {
		ledger = bookingx.NoopLedger{}
	}

	services, err := loadCatalog(appCfg.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("catalog load failed")
	}

	orch, err := orchestratorx.New(store, leaser, registry, notifier, ledger, services, orchestratorx.Config{
		MaxAttempts:     appCfg.MaxAttempts,
		DispatchRetries: appCfg.DispatchRetries,
		ServiceHours:    validatex.Hours{Open: appCfg.ServiceHoursOpen, Close: appCfg.ServiceHoursClose},
		Timezone:        appCfg.Timezone,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("orchestrator init failed")
	}
	_ = orch

	log.Info().Int("services", len(services)).Msg("booking call orchestrator ready")
	fmt.Println("Config and clients loaded")
}

func loadCatalog(path string) ([]catalogx.Service, error) {
	if path == "" {
		return defaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var services []catalogx.Service
	if err := json.Unmarshal(raw, &services); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	return services, nil
}

func defaultCatalog() []catalogx.Service {
	return []catalogx.Service{
		{Name: "Standard Cleaning", Synonyms: []string{"cleaning", "clean", "regular clean"}, Price: 120},
		{Name: "Deep Cleaning", Synonyms: []string{"deep clean", "spring clean"}, Price: 250},
		{Name: "Carpet Cleaning", Synonyms: []string{"carpet", "carpets", "steam clean"}, Price: 180},
		{Name: "Window Cleaning", Synonyms: []string{"windows", "window wash"}, Price: 90},
	}
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	catalogx "github.com/ringlet/callbook/agent/catalog"
	contractx "github.com/ringlet/callbook/agent/contract"
	nodex "github.com/ringlet/callbook/agent/nodes"
	statex "github.com/ringlet/callbook/agent/state"
	validatex "github.com/ringlet/callbook/agent/validate"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidCall    = nodex.ErrInvalidCall
)

type Config struct {
	// MaxAttempts bounds retries per field before the degraded path.
	MaxAttempts int
	// DispatchRetries is how many extra notifier attempts follow the first.
	DispatchRetries int
	// ServiceHours is the bookable daily window in local hours.
	ServiceHours validatex.Hours
	// Timezone anchors relative appointment times, IANA name.
	Timezone string
}

type Orchestrator struct {
	store    statex.Store
	leaser   statex.Leaser
	registry contractx.Registry
	notifier contractx.Notifier
	ledger   contractx.Ledger

	services []catalogx.Service
	policy   nodex.Policy

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now func() time.Time
}

func New(
	store statex.Store,
	leaser statex.Leaser,
	registry contractx.Registry,
	notifier contractx.Notifier,
	ledger contractx.Ledger,
	services []catalogx.Service,
	cfg Config,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if leaser == nil {
		return nil, errors.New("call leaser is required")
	}
	if registry == nil {
		return nil, errors.New("extractor registry is required")
	}
	if notifier == nil {
		return nil, errors.New("dispatch notifier is required")
	}
	if ledger == nil {
		ledger = noopLedger{}
	}
	if len(services) == 0 {
		return nil, errors.New("service catalog is empty")
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		parsed, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
		}
		loc = parsed
	}

	o := &Orchestrator{
		store:    store,
		leaser:   leaser,
		registry: registry,
		notifier: notifier,
		ledger:   ledger,
		services: append([]catalogx.Service(nil), services...),
		policy: nodex.Policy{
			MaxAttempts:     cfg.MaxAttempts,
			DispatchRetries: cfg.DispatchRetries,
			Hours:           cfg.ServiceHours,
			Location:        loc,
		}.Normalize(),
		now: time.Now,
	}

	graphRunner, err := o.compileAdvanceGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// Advance handles one inbound customer utterance for a call. Invocations for
// the same call are serialized by the store-held lease; a second message
// arriving while one is in flight gets statex.ErrCallBusy after a short wait.
func (o *Orchestrator) Advance(ctx context.Context, callID string, text string) (contractx.AdvanceResult, error) {
	lease, err := o.leaser.Acquire(ctx, callID)
	if err != nil {
		return contractx.AdvanceResult{}, err
	}
	defer func() {
		if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
			log.Warn().Str("call_id", callID).Err(rerr).Msg("lease release failed")
		}
	}()

	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		CallID: callID,
		Text:   text,
	})
	if err != nil {
		return contractx.AdvanceResult{}, err
	}
	if out.DispatchFailed {
		return out.Result, fmt.Errorf("%w: call_id=%s", contractx.ErrDispatchFailed, callID)
	}
	return out.Result, nil
}

type noopLedger struct{}

func (noopLedger) Record(context.Context, contractx.BookingDetails) error {
	return nil
}

// Package booking persists completed bookings for reporting. The ledger
// is strictly after the fact: a write failure is logged and never changes
// the outcome of the call that produced it.
package booking

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	contractx "github.com/ringlet/callbook/agent/contract"
)

type Record struct {
	bun.BaseModel `bun:"table:bookings"`

	ID           int64     `bun:"id,pk,autoincrement"`
	CallID       string    `bun:"call_id,notnull,unique"`
	BookingRef   string    `bun:"booking_ref,notnull"`
	CustomerName string    `bun:"customer_name,notnull"`
	Phone        string    `bun:"phone,notnull"`
	Email        string    `bun:"email"`
	Address      string    `bun:"address,notnull"`
	ServiceName  string    `bun:"service_name,notnull"`
	ServicePrice float64   `bun:"service_price"`
	StartsAt     time.Time `bun:"starts_at,notnull"`
	BookedAt     time.Time `bun:"booked_at,notnull"`
}

type PostgresLedger struct {
	db *bun.DB
}

func NewPostgresLedger(ctx context.Context, db *bun.DB) (*PostgresLedger, error) {
	if _, err := db.NewCreateTable().Model((*Record)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, err
	}
	return &PostgresLedger{db: db}, nil
}

// Record inserts one row per call. Re-dispatch of an already recorded call
// is a no-op thanks to the unique call_id.
func (l *PostgresLedger) Record(ctx context.Context, details contractx.BookingDetails) error {
	rec := &Record{
		CallID:       details.CallID,
		BookingRef:   details.BookingRef,
		CustomerName: details.CustomerName,
		Phone:        details.Phone,
		Email:        details.Email,
		Address:      details.Address,
		ServiceName:  details.ServiceName,
		ServicePrice: details.ServicePrice,
		StartsAt:     details.StartsAt,
		BookedAt:     details.BookedAt,
	}
	_, err := l.db.NewInsert().
		Model(rec).
		On("CONFLICT (call_id) DO NOTHING").
		Exec(ctx)
	return err
}

// NoopLedger is the default when no database is configured.
type NoopLedger struct{}

func (NoopLedger) Record(_ context.Context, details contractx.BookingDetails) error {
	log.Debug().Str("call_id", details.CallID).Msg("booking ledger disabled, record skipped")
	return nil
}

package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultLeaseKeyPrefix = "callbook:lease:"
	defaultLeaseTTL       = 15 * time.Second
	defaultAcquireWait    = 500 * time.Millisecond
	defaultAcquirePoll    = 50 * time.Millisecond
)

// Leaser hands out the per-call mutual-exclusion lease. Acquire is bounded:
// it fails fast with ErrCallBusy instead of queueing behind a slow holder.
type Leaser interface {
	Acquire(ctx context.Context, callID string) (Lease, error)
}

// Lease is a held per-call lock. Release is safe to call after expiry; a
// lease that was lost in the meantime releases as a no-op.
type Lease interface {
	Release(ctx context.Context) error
}

// LeaserOption customizes RedisLeaser.
type LeaserOption func(*RedisLeaser)

func WithLeaseTTL(ttl time.Duration) LeaserOption {
	return func(l *RedisLeaser) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func WithAcquireWait(wait time.Duration) LeaserOption {
	return func(l *RedisLeaser) {
		if wait >= 0 {
			l.wait = wait
		}
	}
}

func WithLeaseKeyPrefix(prefix string) LeaserOption {
	return func(l *RedisLeaser) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			l.keyPrefix = trimmed
		}
	}
}

// RedisLeaser implements the lease with SET NX PX plus a token-checked
// delete, so an expired holder can never release a successor's lease.
type RedisLeaser struct {
	rdb       RedisCmd
	keyPrefix string
	ttl       time.Duration
	wait      time.Duration
	poll      time.Duration
}

const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`

func NewRedisLeaser(rdb RedisCmd, opts ...LeaserOption) (*RedisLeaser, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required")
	}
	leaser := &RedisLeaser{
		rdb:       rdb,
		keyPrefix: defaultLeaseKeyPrefix,
		ttl:       defaultLeaseTTL,
		wait:      defaultAcquireWait,
		poll:      defaultAcquirePoll,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(leaser)
		}
	}
	return leaser, nil
}

func (l *RedisLeaser) Acquire(ctx context.Context, callID string) (Lease, error) {
	if strings.TrimSpace(callID) == "" {
		return nil, ErrInvalidCallID
	}

	key := l.keyPrefix + callID
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lease: %w", err)
		}
		if ok {
			return &redisLease{rdb: l.rdb, key: key, token: token}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: call_id=%s", ErrCallBusy, callID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}

type redisLease struct {
	rdb   RedisCmd
	key   string
	token string
}

func (l *redisLease) Release(ctx context.Context) error {
	if err := l.rdb.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultStoreKeyPrefix = "callbook:call:"
	defaultStoreTTL       = 24 * time.Hour
)

// Store is the persistence contract used by the orchestrator. Save returns
// ErrConflict when the stored version no longer matches the loaded one; under
// the per-call lease this indicates a bug or an expired lease holder.
type Store interface {
	Load(ctx context.Context, callID string) (*CallState, error)
	Save(ctx context.Context, st *CallState) error
	AppendMessage(ctx context.Context, callID string, msgs ...Message) error
}

// RedisCmd is the slice of go-redis used by the store and the leaser; tests
// substitute a fake, production passes *redis.Client.
type RedisCmd interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// StoreOption customizes RedisCallStore.
type StoreOption func(*RedisCallStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *RedisCallStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) StoreOption {
	return func(s *RedisCallStore) {
		s.ttl = ttl
	}
}

// RedisCallStore persists CallState as a JSON record plus an append-only
// history list, both keyed by call id.
type RedisCallStore struct {
	rdb       RedisCmd
	keyPrefix string
	ttl       time.Duration
}

// saveScript compares the stored version counter with the version the caller
// loaded; only a match writes the new record and bumps the counter.
const saveScript = `
local cur = redis.call('GET', KEYS[2])
if not cur then cur = '0' end
if cur ~= ARGV[2] then return 0 end
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[3])
redis.call('INCRBY', KEYS[2], 1)
redis.call('EXPIRE', KEYS[2], ARGV[3])
return 1
`

func NewRedisCallStore(rdb RedisCmd, opts ...StoreOption) (*RedisCallStore, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required")
	}
	store := &RedisCallStore{
		rdb:       rdb,
		keyPrefix: defaultStoreKeyPrefix,
		ttl:       defaultStoreTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	if store.ttl <= 0 {
		return nil, errors.New("ttl must be > 0")
	}
	return store, nil
}

func (s *RedisCallStore) Load(ctx context.Context, callID string) (*CallState, error) {
	stateKey, err := s.stateKey(callID)
	if err != nil {
		return nil, err
	}

	raw, err := s.rdb.Get(ctx, stateKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("load call state: %w", err)
	}

	var st CallState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("unmarshal call state: %w", err)
	}

	st.EnsureAttemptsMap()
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid call state loaded from store: %w", err)
	}

	history, err := s.history(ctx, callID)
	if err != nil {
		return nil, err
	}
	st.History = history

	return &st, nil
}

func (s *RedisCallStore) Save(ctx context.Context, st *CallState) error {
	if st == nil {
		return ErrNilCallState
	}
	stateKey, err := s.stateKey(st.CallID)
	if err != nil {
		return err
	}
	st.EnsureAttemptsMap()
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}

	expected := st.Version
	st.Version = expected + 1

	payload, err := json.Marshal(st)
	if err != nil {
		st.Version = expected
		return fmt.Errorf("marshal call state: %w", err)
	}

	ok, err := s.rdb.Eval(ctx, saveScript,
		[]string{stateKey, s.versionKey(st.CallID)},
		string(payload),
		strconv.FormatInt(expected, 10),
		ttlSeconds(s.ttl),
	).Int64()
	if err != nil {
		st.Version = expected
		return fmt.Errorf("save call state: %w", err)
	}
	if ok != 1 {
		st.Version = expected
		return ErrConflict
	}

	return nil
}

func (s *RedisCallStore) AppendMessage(ctx context.Context, callID string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	key, err := s.historyKey(callID)
	if err != nil {
		return err
	}

	values := make([]interface{}, 0, len(msgs))
	for _, msg := range msgs {
		b, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal history message: %w", err)
		}
		values = append(values, b)
	}

	if err := s.rdb.RPush(ctx, key, values...).Err(); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	// extend TTL on touch
	if err := s.rdb.Expire(ctx, key, s.ttl).Err(); err != nil {
		return fmt.Errorf("refresh history ttl: %w", err)
	}
	return nil
}

func (s *RedisCallStore) history(ctx context.Context, callID string) ([]Message, error) {
	key, err := s.historyKey(callID)
	if err != nil {
		return nil, err
	}

	rows, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load history: %w", err)
	}

	msgs := make([]Message, 0, len(rows))
	for i, row := range rows {
		var m Message
		if err := json.Unmarshal([]byte(row), &m); err != nil {
			return nil, fmt.Errorf("unmarshal history message at index %d: %w", i, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *RedisCallStore) stateKey(callID string) (string, error) {
	if strings.TrimSpace(callID) == "" {
		return "", ErrInvalidCallID
	}
	return s.keyPrefix + callID, nil
}

func (s *RedisCallStore) versionKey(callID string) string {
	return s.keyPrefix + callID + ":ver"
}

func (s *RedisCallStore) historyKey(callID string) (string, error) {
	if strings.TrimSpace(callID) == "" {
		return "", ErrInvalidCallID
	}
	return s.keyPrefix + callID + ":history", nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}

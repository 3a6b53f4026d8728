// Package redis provides Redis-backed shared state for running several
// aggregator processes: a geocode result cache and a distributed sync lock.
package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/grove/kv"
	"github.com/xraph/grove/kv/drivers/redisdriver"

	"github.com/xraph/convene/geocode"
	"github.com/xraph/convene/lock"
)

// Defaults for entry lifetimes.
const (
	DefaultGeocodeTTL = 30 * 24 * time.Hour
	DefaultLockTTL    = 2 * time.Hour
)

// compile-time interface checks
var (
	_ geocode.Cache = (*Store)(nil)
	_ lock.Locker   = (*Store)(nil)
)

// releaseScript deletes the lock only while it still holds the caller's token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Option configures a Store.
type Option func(*Store)

// WithGeocodeTTL sets how long geocode results are kept.
func WithGeocodeTTL(d time.Duration) Option {
	return func(s *Store) { s.geocodeTTL = d }
}

// WithLockTTL bounds how long a crashed holder can keep a lock.
func WithLockTTL(d time.Duration) Option {
	return func(s *Store) { s.lockTTL = d }
}

// Store implements geocode.Cache and lock.Locker on Redis. kv is nil when
// built from a bare client.
type Store struct {
	kv         *kv.Store
	rdb        goredis.UniversalClient
	geocodeTTL time.Duration
	lockTTL    time.Duration
}

// New creates a new Redis store backed by Grove KV.
func New(store *kv.Store, opts ...Option) *Store {
	s := NewFromClient(redisdriver.UnwrapClient(store), opts...)
	s.kv = store
	return s
}

// NewFromClient creates a Redis store over a go-redis client, for hosts
// that do not run Grove KV.
func NewFromClient(rdb goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		rdb:        rdb,
		geocodeTTL: DefaultGeocodeTTL,
		lockTTL:    DefaultLockTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.kv != nil {
		return s.kv.Ping(ctx)
	}
	return s.rdb.Ping(ctx).Err()
}

// Close closes the KV store or the client.
func (s *Store) Close() error {
	if s.kv != nil {
		return s.kv.Close()
	}
	return s.rdb.Close()
}

// GetGeocode implements geocode.Cache. A missing key is geocode.ErrCacheMiss.
func (s *Store) GetGeocode(ctx context.Context, key string) (*geocode.Result, error) {
	raw, err := s.rdb.Get(ctx, geocodeKey(key)).Bytes()
	if err != nil {
		if isRedisNil(err) {
			return nil, geocode.ErrCacheMiss
		}
		return nil, fmt.Errorf("convene/redis: get geocode: %w", err)
	}

	var res geocode.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("convene/redis: decode geocode: %w", err)
	}
	return &res, nil
}

// SetGeocode implements geocode.Cache.
func (s *Store) SetGeocode(ctx context.Context, key string, res *geocode.Result) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("convene/redis: marshal geocode: %w", err)
	}
	if err := s.rdb.Set(ctx, geocodeKey(key), raw, s.geocodeTTL).Err(); err != nil {
		return fmt.Errorf("convene/redis: set geocode: %w", err)
	}
	return nil
}

// TryLock implements lock.Locker with SET NX PX and a random token. The
// returned release deletes the key only if this holder still owns it.
func (s *Store) TryLock(ctx context.Context, key string) (func(), bool, error) {
	token, err := newToken()
	if err != nil {
		return nil, false, err
	}

	k := lockKey(key)
	ok, err := s.rdb.SetNX(ctx, k, token, s.lockTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("convene/redis: acquire lock %q: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release must run even when the sync's context was cancelled.
			_ = releaseScript.Run(context.Background(), s.rdb, []string{k}, token).Err() //nolint:errcheck // expiry reclaims the key
		})
	}, true, nil
}

// newToken returns a random lock owner token.
func newToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("convene/redis: lock token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

// isRedisNil checks if an error is a Redis nil (key not found).
func isRedisNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}

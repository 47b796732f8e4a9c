// Package lock serialises mutating operations per trip, across replicas when
// Redis is available and within the process otherwise.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when another holder owns the trip's lock.
var ErrLockNotAcquired = errors.New("trip lock not acquired")

// Locker runs fn while holding the trip's lock.
type Locker interface {
	WithTripLock(ctx context.Context, tripID uuid.UUID, fn func(ctx context.Context) error) error
}

// NewClient opens and pings a Redis client. Connection settings (address,
// credentials, DB, TLS) come from opts; unset timeouts and pool sizes get
// lock-friendly defaults. opts is not modified.
func NewClient(ctx context.Context, opts *redis.Options) (*redis.Client, error) {
	o := *opts
	if o.ReadTimeout == 0 {
		o.ReadTimeout = 2 * time.Second
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 2 * time.Second
	}
	if o.PoolSize == 0 {
		o.PoolSize = 10
	}
	if o.MinIdleConns == 0 {
		o.MinIdleConns = 1
	}
	rdb := redis.NewClient(&o)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("lock.NewClient: ping redis: %w", err)
	}
	return rdb, nil
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker returns a Locker backed by one Redis key per trip. The key
// expires after ttl so a crashed holder cannot wedge the trip.
func NewRedisLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisLocker{client: client, ttl: ttl}
}

func (l *redisLocker) WithTripLock(ctx context.Context, tripID uuid.UUID, fn func(ctx context.Context) error) error {
	key := "lock:trip:" + tripID.String()
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("lock.WithTripLock: acquire: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}
	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	fnCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()
	return fn(fnCtx)
}

// unlockScript deletes the key only if this holder still owns it.
var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("lock.release: %w", err)
	}
	return nil
}

// Local is an in-process Locker. Unlike the Redis locker it waits for the
// lock instead of failing fast, bounded by ctx. A trip's entry lives only
// while someone holds or waits for its lock.
type Local struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int // holders plus waiters
}

// NewLocal returns an empty Local locker.
func NewLocal() *Local {
	return &Local{locks: make(map[uuid.UUID]*localLock)}
}

func (l *Local) WithTripLock(ctx context.Context, tripID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	ll, ok := l.locks[tripID]
	if !ok {
		ll = &localLock{ch: make(chan struct{}, 1)}
		l.locks[tripID] = ll
	}
	ll.refs++
	l.mu.Unlock()
	defer l.release(tripID, ll)

	select {
	case ll.ch <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("lock.Local.WithTripLock: %w", ErrLockNotAcquired)
	}
	defer func() { <-ll.ch }()

	return fn(ctx)
}

func (l *Local) release(tripID uuid.UUID, ll *localLock) {
	l.mu.Lock()
	ll.refs--
	if ll.refs == 0 {
		delete(l.locks, tripID)
	}
	l.mu.Unlock()
}

// Len reports how many trips currently have a holder or waiter.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

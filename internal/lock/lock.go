// Package lock serialises work that must not run concurrently, such as
// matching runs started from several instances.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained is returned when the lock is held by someone else, or when a
// lease being refreshed has already been lost.
var ErrNotObtained = errors.New("lock not obtained")

// Lease is an obtained lock.
type Lease interface {
	// Refresh extends the lease to ttl from now.
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// RedisLocker shares locks between instances through redis.
type RedisLocker struct {
	client *redislock.Client
}

func NewRedisLocker(rdb redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb)}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	lk, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}
	return &redisLease{lock: lk}, nil
}

type redisLease struct {
	lock *redislock.Lock
}

func (r *redisLease) Refresh(ctx context.Context, ttl time.Duration) error {
	err := r.lock.Refresh(ctx, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrNotObtained
	}
	return err
}

func (r *redisLease) Release(ctx context.Context) error {
	err := r.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}

// LocalLocker holds locks in process memory. It is used when redis is not configured.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]heldLease
	now   func() time.Time
	token uint64
}

type heldLease struct {
	token   uint64
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]heldLease{}, now: time.Now}
}

func (l *LocalLocker) Obtain(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if lease, ok := l.held[key]; ok && now.Before(lease.expires) {
		return nil, ErrNotObtained
	}

	l.token++
	l.held[key] = heldLease{token: l.token, expires: now.Add(ttl)}
	return &localLease{locker: l, key: key, token: l.token}, nil
}

type localLease struct {
	locker *LocalLocker
	key    string
	token  uint64
}

// owned reports whether the lease still belongs to this holder. Callers hold the mutex.
func (h *localLease) owned() bool {
	lease, ok := h.locker.held[h.key]
	return ok && lease.token == h.token && h.locker.now().Before(lease.expires)
}

func (h *localLease) Refresh(_ context.Context, ttl time.Duration) error {
	h.locker.mu.Lock()
	defer h.locker.mu.Unlock()
	if !h.owned() {
		return ErrNotObtained
	}
	h.locker.held[h.key] = heldLease{token: h.token, expires: h.locker.now().Add(ttl)}
	return nil
}

func (h *localLease) Release(context.Context) error {
	h.locker.mu.Lock()
	defer h.locker.mu.Unlock()
	// an expired lease may already belong to someone else
	if lease, ok := h.locker.held[h.key]; ok && lease.token == h.token {
		delete(h.locker.held, h.key)
	}
	return nil
}

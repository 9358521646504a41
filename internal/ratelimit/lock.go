package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Deletes the key only while it still holds our token.
const releaseLeaseScript = `
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("DEL", KEYS[1])
`

var (
	ErrLockHeld    = errors.New("lock held by another holder")
	errInvalidLock = errors.New("lock key and ttl are required")
)

// Locker hands out redis leases so only one replica runs a sweeper job at a time.
type Locker struct {
	client  redis.UniversalClient
	release *redis.Script
}

func NewLocker(client redis.UniversalClient) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client, release: redis.NewScript(releaseLeaseScript)}
}

// Lease is a held lock. It expires on its own after the ttl it was taken with.
type Lease struct {
	locker *Locker
	key    string
	token  string
}

// Acquire takes key for ttl, or returns ErrLockHeld.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if l == nil {
		return nil, ErrLimiterNotConfigured
	}
	if key == "" || ttl <= 0 {
		return nil, errInvalidLock
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	switch {
	case err != nil:
		return nil, err
	case !ok:
		return nil, ErrLockHeld
	}
	return &Lease{locker: l, key: key, token: token}, nil
}

func (ls *Lease) Release(ctx context.Context) error {
	if ls == nil {
		return nil
	}
	return ls.locker.release.Run(ctx, ls.locker.client, []string{ls.key}, ls.token).Err()
}

// WithLock runs fn under key. A nil Locker runs fn unguarded.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}
	lease, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		// fresh context: a cancelled job must still free the key
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = lease.Release(releaseCtx)
	}()
	return fn(ctx)
}

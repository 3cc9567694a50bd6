// Package lock serializes deployments that share a deployer account.
package lock

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another run already holds the lock.
var ErrLocked = errors.New("lock: already held")

// ReleaseFunc releases a held lock.
type ReleaseFunc func(ctx context.Context) error

// Locker acquires named locks with a TTL.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error)
}

// DeployKey returns the lock key for deployments from one account on one chain.
func DeployKey(chainID *big.Int, deployer common.Address) string {
	return fmt.Sprintf("deploy:%s:%s", chainID, deployer.Hex())
}

// RedisClient is the subset of *redis.Client used by RedisLocker.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// releaseScript deletes the key only if it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisLocker implements Locker with SET NX and a token-checked release.
type RedisLocker struct {
	client RedisClient
}

// NewRedisLocker creates a Redis-backed locker.
func NewRedisLocker(client RedisClient) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire takes the lock or returns ErrLocked.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}

	return func(ctx context.Context) error {
		n, err := l.client.Eval(ctx, releaseScript, []string{key}, token).Int64()
		if err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		if n == 0 {
			return fmt.Errorf("release %s: lock expired or taken over", key)
		}
		return nil
	}, nil
}

// NopLocker always succeeds. Used when Redis is not configured.
type NopLocker struct{}

// Acquire returns a no-op release.
func (NopLocker) Acquire(context.Context, string, time.Duration) (ReleaseFunc, error) {
	return func(context.Context) error { return nil }, nil
}

var (
	_ Locker      = (*RedisLocker)(nil)
	_ Locker      = NopLocker{}
	_ RedisClient = (*redis.Client)(nil)
)

// Package lock guards batch runs against double-fired triggers with a Redis
// SET NX lease.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/adbilling/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// ErrHeld is returned by Run when another holder owns the key.
var ErrHeld = errors.New("lock held by another run")

var Module = fx.Module("lock",
	fx.Provide(NewClient),
	fx.Provide(NewLocker),
)

// NewClient returns nil when REDIS_ADDR is unset; runs are then unguarded.
func NewClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		log.Info("redis not configured, batch run lock disabled")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

type Locker struct {
	client *redis.Client
	script *redis.Script
	log    *zap.Logger
}

func NewLocker(client *redis.Client, log *zap.Logger) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(releaseScript),
		log:    log.Named("lock"),
	}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

// Run executes fn while holding key. A nil Locker runs fn directly since the
// underlying operations are idempotent on their own.
func (l *Locker) Run(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}
	token, ok, err := l.TryLock(ctx, key, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrHeld
	}
	defer func() {
		// release on a fresh context so a cancelled run still frees the key
		if err := l.Release(context.Background(), key, token); err != nil {
			l.log.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}()
	return fn(ctx)
}

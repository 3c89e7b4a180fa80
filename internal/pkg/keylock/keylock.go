// Package keylock provides mutual exclusion scoped to an arbitrary string key.
package keylock

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/geo-attendance/internal/config"
	"github.com/go-redis/redis/v8"
)

// Locker serializes work per key. Lock blocks until the key is free or ctx is
// done. The returned unlock func is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// FromConfig builds the configured backend. The returned close func releases
// backend resources and is never nil.
func FromConfig(ctx context.Context, cfg config.LockConfig) (Locker, func() error, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocal(), func() error { return nil }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("ping redis at %s: %w", cfg.RedisAddr, err)
		}
		return NewRedis(client, cfg.TTL, cfg.RetryInterval), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}

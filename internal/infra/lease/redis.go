package lease

import (
	"context"
	"fmt"
	"time"

	"notification_scheduler/internal/domain"
	"notification_scheduler/internal/domain/schedule"
	"notification_scheduler/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLeases implements schedule.LeaseStore with SET NX PX, so leases are
// shared by every scheduler instance using the same Redis.
type RedisLeases struct {
	client *redis.Client
	prefix string
	holder string
}

var _ schedule.LeaseStore = (*RedisLeases)(nil)

// Connect opens a Redis client and checks connectivity.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// NewRedis creates a lease store. Keys are namespaced with prefix.
func NewRedis(client *redis.Client, prefix string) *RedisLeases {
	return &RedisLeases{client: client, prefix: prefix, holder: uuid.NewString()}
}

// Acquire implements schedule.LeaseStore. The lease is never released
// explicitly; it expires after ttl.
func (l *RedisLeases) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := l.client.SetNX(ctx, l.prefix+key, l.holder, ttl).Result()
	metrics.ObserveStoreRequest("redis", "lease_acquire", start, err)
	if err != nil {
		return false, fmt.Errorf("error acquiring lease %s: %w: %w", key, domain.ErrStoreUnavailable, err)
	}
	return ok, nil
}

// Holder returns the token stored as the value of leases taken by this instance.
func (l *RedisLeases) Holder() string {
	return l.holder
}

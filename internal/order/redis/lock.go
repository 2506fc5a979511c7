package redis

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-docservices/internal/logger"
)

// Redis holds the per-order transition lock. The lock key carries the caller's
// token so only the holder can release it; the TTL is a safety net against a
// crashed holder, not the normal release path.
type Redis struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewRedis(client *redis.Client, log *logger.Logger) *Redis {
	return &Redis{
		Client: client,
		Logger: log,
	}
}

// getLockDuration returns the lock TTL from the environment or the default.
func (r *Redis) getLockDuration() time.Duration {
	defaultDuration := 10 * time.Second

	lockTTLStr := os.Getenv("ORDER_LOCK_TTL_SECONDS")
	if lockTTLStr == "" {
		return defaultDuration
	}

	lockTTLSec, err := strconv.Atoi(lockTTLStr)
	if err != nil {
		r.Logger.Warn("REDIS", fmt.Sprintf("invalid ORDER_LOCK_TTL_SECONDS value %q, using default 10s", lockTTLStr))
		return defaultDuration
	}
	return time.Duration(lockTTLSec) * time.Second
}

// LockOrder attempts to take the transition lock for an order. The token
// identifies the holder for the matching UnlockOrder call.
func (r *Redis) LockOrder(orderID, token string) (bool, error) {
	key := "order_lock:" + orderID
	ok, err := r.Client.SetNX(context.Background(), key, token, r.getLockDuration()).Result()
	return ok, err
}

// UnlockOrder releases the lock only if the token still owns it. Releasing an
// expired or foreign lock is a no-op, never an error.
func (r *Redis) UnlockOrder(orderID, token string) error {
	ctx := context.Background()
	key := "order_lock:" + orderID
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already released or expired
	}
	if err != nil {
		return err
	}
	if val == token {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}

package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"mailconnect/config"
	"mailconnect/utils"
)

var (
	storageOnce   sync.Once
	sharedStorage fiber.Storage
)

// RateLimiter allows max requests per minute for one scope, keyed by the
// authenticated user or, before authentication, by client IP. A max of
// zero or less disables the limit.
func RateLimiter(scope string, max int) fiber.Handler {
	if max <= 0 {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if user := CurrentUser(c); user != nil {
				return utils.GenerateRateLimitKey(scope, user.ID, c.Path())
			}
			return utils.GenerateRateLimitKey(scope, c.IP(), c.Path())
		},
		LimitReached: func(c *fiber.Ctx) error {
			event := map[string]interface{}{
				"scope":      scope,
				"endpoint":   c.Path(),
				"ip":         c.IP(),
				"user_agent": c.Get(fiber.HeaderUserAgent),
			}
			if user := CurrentUser(c); user != nil {
				event["user_id"] = user.ID
			}
			utils.LogEvent("rate_limit_hit", event)

			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests. Please wait before trying again.",
				"retry_after": "1 minute",
			})
		},
		Storage: Storage(),
	})
}

// Storage returns the shared Redis storage when Redis is enabled, nil
// otherwise so that middlewares fall back to their in-memory stores.
func Storage() fiber.Storage {
	storageOnce.Do(func() {
		if config.AppConfig.Redis.Enabled {
			sharedStorage = NewRedisStorage(config.AppConfig.Redis)
		}
	})
	return sharedStorage
}

// RedisStorage implements fiber.Storage for Redis
type RedisStorage struct {
	client *redis.Client
}

func NewRedisStorage(cfg config.RedisConfig) *RedisStorage {
	return &RedisStorage{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (r *RedisStorage) Get(key string) ([]byte, error) {
	val, err := r.client.Get(context.Background(), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

func (r *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	return r.client.Set(context.Background(), key, val, exp).Err()
}

func (r *RedisStorage) Delete(key string) error {
	return r.client.Del(context.Background(), key).Err()
}

func (r *RedisStorage) Reset() error {
	return r.client.FlushDB(context.Background()).Err()
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}

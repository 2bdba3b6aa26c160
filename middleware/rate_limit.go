package middleware

import (
	"context"
	"fmt"
	"time"

	"creatorbook/config"
	"creatorbook/utils"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// Per-endpoint abuse limits, keyed by client IP. The Redis storage makes
// limits survive restarts and apply across replicas; without Redis the
// limiter falls back to in-memory counting.
func SignupRateLimiter() fiber.Handler {
	return ipRateLimiter("signup", 3, time.Minute,
		"Too many signup attempts. Please try again later.")
}

func MagicLinkRateLimiter() fiber.Handler {
	return ipRateLimiter("magic-link", 5, time.Minute,
		"Too many requests. Please try again later.")
}

func UnlockCodeRateLimiter() fiber.Handler {
	return ipRateLimiter("unlock-code", 3, time.Hour,
		"Too many unlock code requests. Please try again later.")
}

func VerifyCodeRateLimiter() fiber.Handler {
	return ipRateLimiter("verify-code", 5, time.Hour,
		"Too many verification attempts. Please try again later.")
}

func ipRateLimiter(scope string, max int, window time.Duration, message string) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return fmt.Sprintf("rl:%s:%s", scope, utils.GetClientIP(c))
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   message,
			})
		},
		Storage: createRateLimitStorage(),
	})
}

// createRateLimitStorage creates a persistent storage for rate limiting
func createRateLimitStorage() fiber.Storage {
	if config.AppConfig.Redis.Enabled {
		return NewRedisStorage(config.AppConfig.Redis)
	}
	return nil
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
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

func (r *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
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

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Yab112/art-store-backend-sub000/internal/config"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

const (
	orderKeyPrefix  = "order:"
	settingsKey     = "platform_settings"
	defaultCacheTTL = 5 * time.Minute
)

// RedisCache implements OrderCache and SettingsCache using Redis.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *logging.LoggerV2
}

// NewRedisCache creates a Redis-backed cache from config.
func NewRedisCache(cfg config.RedisConfig) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisCacheWithClient(client, cfg.TTL)
}

func NewRedisCacheWithClient(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl == 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logging.NewLoggerV2("cache"),
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.logger.Debug("Cache miss", logging.Fields{"key": key})
		return false, nil
	}
	if err != nil {
		c.logger.Error("Cache get error", logging.Fields{
			"key":   key,
			"error": err.Error(),
		})
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	c.logger.Debug("Cache hit", logging.Fields{"key": key})
	return true, nil
}

func (c *RedisCache) setJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Error("Cache set error", logging.Fields{
			"key":   key,
			"error": err.Error(),
		})
		return err
	}
	return nil
}

// GetOrder returns nil, nil on a miss.
func (c *RedisCache) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	ok, err := c.getJSON(ctx, orderKeyPrefix+id, &order)
	if err != nil || !ok {
		return nil, err
	}
	return &order, nil
}

func (c *RedisCache) SetOrder(ctx context.Context, order *models.Order) error {
	return c.setJSON(ctx, orderKeyPrefix+order.ID, order)
}

func (c *RedisCache) DeleteOrders(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, orderKeyPrefix+id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Error("Cache delete error", logging.Fields{
			"count": len(keys),
			"error": err.Error(),
		})
		return err
	}
	return nil
}

func (c *RedisCache) GetSettings(ctx context.Context) (*models.Settings, error) {
	var s models.Settings
	ok, err := c.getJSON(ctx, settingsKey, &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

func (c *RedisCache) SetSettings(ctx context.Context, s *models.Settings) error {
	return c.setJSON(ctx, settingsKey, s)
}

func (c *RedisCache) InvalidateSettings(ctx context.Context) error {
	return c.client.Del(ctx, settingsKey).Err()
}

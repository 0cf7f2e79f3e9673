package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/diewo77/occuhealth/internal/logger"
	"github.com/diewo77/occuhealth/internal/models"
	"github.com/redis/go-redis/v9"
)

// Redis is a read-through cache shared between instances.
// Redis failures are logged and the lookup falls through to the inner catalog.
type Redis struct {
	inner  Catalog
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    *logger.Logger
}

func NewRedis(inner Catalog, client redis.UniversalClient, prefix string, ttl time.Duration, log *logger.Logger) *Redis {
	if log == nil {
		log = logger.NewNop()
	}
	return &Redis{inner: inner, client: client, prefix: prefix, ttl: ttl, log: log}
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (c *Redis) key(id uint) string {
	return c.prefix + strconv.FormatUint(uint64(id), 10)
}

func (c *Redis) Get(ctx context.Context, id uint) (models.HealthTestSnapshot, error) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	switch {
	case err == nil:
		var snap models.HealthTestSnapshot
		if jerr := json.Unmarshal(raw, &snap); jerr == nil {
			return snap, nil
		}
		c.log.Warn("discarding corrupt catalog cache entry", "health_test_id", id)
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("catalog cache read failed", "health_test_id", id, "error", err)
	}

	snap, err := c.inner.Get(ctx, id)
	if err != nil {
		return models.HealthTestSnapshot{}, err
	}
	if raw, jerr := json.Marshal(snap); jerr == nil {
		if serr := c.client.Set(ctx, c.key(id), raw, c.ttl).Err(); serr != nil {
			c.log.Warn("catalog cache write failed", "health_test_id", id, "error", serr)
		}
	}
	return snap, nil
}

// Invalidate drops one entry from the shared cache.
func (c *Redis) Invalidate(ctx context.Context, id uint) error {
	return c.client.Del(ctx, c.key(id)).Err()
}

// Package rediscache puts a Redis read-through cache in front of the catalog and schedule
// configuration sources. Misses on the same key are collapsed into one source lookup, and
// Redis failures degrade to reading the source directly.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

const DefaultTTL = 5 * time.Minute

type Cache struct {
	redis   redis.UniversalClient
	catalog store.Catalog
	configs store.ConfigSource
	ttl     time.Duration
	group   singleflight.Group
	log     *slog.Logger
}

func New(client redis.UniversalClient, catalog store.Catalog, configs store.ConfigSource, ttl time.Duration, log *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		redis:   client,
		catalog: catalog,
		configs: configs,
		ttl:     ttl,
		log:     log.With(slog.String("component", "rediscache")),
	}
}

func serviceKey(id string) string      { return "agenda:catalog:service:" + id }
func professionalKey(id string) string { return "agenda:catalog:professional:" + id }
func configKey(id string) string       { return "agenda:config:" + id }

func (c *Cache) Service(ctx context.Context, serviceID string) (domain.Service, error) {
	return readThrough(ctx, c, serviceKey(serviceID), func(ctx context.Context) (domain.Service, error) {
		return c.catalog.Service(ctx, serviceID)
	})
}

func (c *Cache) Professional(ctx context.Context, professionalID string) (domain.Professional, error) {
	return readThrough(ctx, c, professionalKey(professionalID), func(ctx context.Context) (domain.Professional, error) {
		return c.catalog.Professional(ctx, professionalID)
	})
}

func (c *Cache) ScheduleConfig(ctx context.Context, businessID string) (domain.ScheduleConfig, error) {
	return readThrough(ctx, c, configKey(businessID), func(ctx context.Context) (domain.ScheduleConfig, error) {
		return c.configs.ScheduleConfig(ctx, businessID)
	})
}

// InvalidateService drops a cached service so the next read goes to the source.
func (c *Cache) InvalidateService(ctx context.Context, serviceID string) error {
	return c.redis.Del(ctx, serviceKey(serviceID)).Err()
}

func (c *Cache) InvalidateProfessional(ctx context.Context, professionalID string) error {
	return c.redis.Del(ctx, professionalKey(professionalID)).Err()
}

func (c *Cache) InvalidateScheduleConfig(ctx context.Context, businessID string) error {
	return c.redis.Del(ctx, configKey(businessID)).Err()
}

// readThrough serves key from Redis, or loads it from the source and stores it. Source
// errors, including store.ErrNotFound, are returned and never cached.
func readThrough[T any](ctx context.Context, c *Cache, key string, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
		c.log.WarnContext(ctx, "discarding undecodable cache entry", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.Any("err", err))
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return v, nil
		}
		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.Any("err", err))
		}
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// Package cache provides the Redis-backed lookup cache for product mappings.
package cache

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"hivepos/internal/core/id"
	"hivepos/internal/domain/matching"
)

const keyPrefix = "hivepos:mapping:"

// MappingCache implements matching.Cache on Redis. Entries expire after ttl
// so a mapping changed by another process is picked up eventually even if
// its invalidation was missed.
type MappingCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ matching.Cache = (*MappingCache)(nil)

// NewMappingCache connects a mapping cache to the given Redis instance.
func NewMappingCache(addr, password string, db int, ttl time.Duration) *MappingCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &MappingCache{client: client, ttl: ttl}
}

// Ping checks the connection.
func (c *MappingCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client.
func (c *MappingCache) Close() error {
	return c.client.Close()
}

func (c *MappingCache) Get(ctx context.Context, source, externalSKU string) (id.ID, bool, error) {
	val, err := c.client.Get(ctx, mappingKey(source, externalSKU)).Result()
	if errors.Is(err, redis.Nil) {
		return id.Nil(), false, nil
	}
	if err != nil {
		return id.Nil(), false, err
	}
	productID, err := id.Parse(val)
	if err != nil {
		// A corrupt entry is a miss; the next Set overwrites it.
		return id.Nil(), false, nil
	}
	return productID, true, nil
}

func (c *MappingCache) Set(ctx context.Context, source, externalSKU string, productID id.ID) error {
	return c.client.Set(ctx, mappingKey(source, externalSKU), productID.String(), c.ttl).Err()
}

func (c *MappingCache) Delete(ctx context.Context, source, externalSKU string) error {
	return c.client.Del(ctx, mappingKey(source, externalSKU)).Err()
}

func mappingKey(source, externalSKU string) string {
	return keyPrefix + source + ":" + externalSKU
}

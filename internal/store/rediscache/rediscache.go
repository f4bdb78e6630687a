// Package rediscache is the shared category-rate cache for multi-instance
// deployments: every instance sees an Invalidate immediately, unlike the
// in-process cache where only the local entry is dropped.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"commerce-engine/internal/core"
)

const keyPrefix = "gstcat:"

// CategoryCache implements core.CategoryLookup as a read-through cache over
// Redis, falling back to the backing CategoryStore on a miss. Entries expire
// by TTL; an unmapped HSN is cached as an empty value so repeated lookups of
// unknown codes do not hammer the store.
type CategoryCache struct {
	client *redis.Client
	store  core.CategoryStore
	ttl    time.Duration
}

func New(client *redis.Client, store core.CategoryStore, ttl time.Duration) *CategoryCache {
	return &CategoryCache{client: client, store: store, ttl: ttl}
}

func (c *CategoryCache) Category(ctx context.Context, hsn string) (*core.GSTCategory, error) {
	key := keyPrefix + hsn
	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if raw == "" {
			return nil, nil // cached negative
		}
		var cat core.GSTCategory
		if uerr := json.Unmarshal([]byte(raw), &cat); uerr == nil {
			return &cat, nil
		}
		// Unreadable entry: drop it and refetch.
		c.client.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		// Redis trouble degrades to the store instead of failing the lookup.
		log.Warn().Err(err).Str("hsn", hsn).Msg("category cache read failed, going to the store")
	}

	cat, err := c.store.GetCategoryByHSN(ctx, hsn)
	if err != nil {
		return nil, err
	}

	payload := ""
	if cat != nil {
		b, merr := json.Marshal(cat)
		if merr != nil {
			return nil, fmt.Errorf("encode category for cache: %w", merr)
		}
		payload = string(b)
	}
	if serr := c.client.Set(ctx, key, payload, c.ttl).Err(); serr != nil {
		log.Warn().Err(serr).Str("hsn", hsn).Msg("category cache write failed")
	}
	return cat, nil
}

func (c *CategoryCache) Invalidate(ctx context.Context, hsn string) error {
	if err := c.client.Del(ctx, keyPrefix+hsn).Err(); err != nil {
		return fmt.Errorf("drop cached category for %s: %w", hsn, err)
	}
	return nil
}

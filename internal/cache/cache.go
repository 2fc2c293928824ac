// Package cache keeps museum metadata in Redis so a check-in session can
// open without a round trip for a recently seen museum.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neexbeast/museum-checkin/internal/checkin"
)

const defaultTTL = time.Hour

// MuseumLoader is the upstream consulted on a miss.
type MuseumLoader interface {
	GetMuseum(ctx context.Context, id int64) (*checkin.Museum, error)
}

// Museums is a read-through cache of museum metadata.
type Museums struct {
	client   *redis.Client
	upstream MuseumLoader
	log      *slog.Logger
	ttl      time.Duration
}

// NewMuseums constructs a Museums cache with a 1-hour TTL.
func NewMuseums(client *redis.Client, upstream MuseumLoader, log *slog.Logger) *Museums {
	return &Museums{client: client, upstream: upstream, log: log, ttl: defaultTTL}
}

// WithTTL overrides the entry lifetime.
func (c *Museums) WithTTL(ttl time.Duration) *Museums {
	c.ttl = ttl
	return c
}

func key(id int64) string {
	return "museum:" + strconv.FormatInt(id, 10)
}

// Get retrieves a cached museum.
// Returns nil, nil on a cache miss (not an error).
func (c *Museums) Get(ctx context.Context, id int64) (*checkin.Museum, error) {
	val, err := c.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get for museum %d: %w", id, err)
	}

	var m checkin.Museum
	if err := json.Unmarshal(val, &m); err != nil {
		return nil, fmt.Errorf("unmarshaling cached museum %d: %w", id, err)
	}
	return &m, nil
}

// Set stores m with the configured TTL. A nil museum is a no-op.
func (c *Museums) Set(ctx context.Context, m *checkin.Museum) error {
	if m == nil {
		return nil
	}

	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling museum %d: %w", m.ID, err)
	}
	if err := c.client.Set(ctx, key(m.ID), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set for museum %d: %w", m.ID, err)
	}
	return nil
}

// Delete removes the cached entry for id.
func (c *Museums) Delete(ctx context.Context, id int64) error {
	if err := c.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("cache delete for museum %d: %w", id, err)
	}
	return nil
}

// GetMuseum serves id from the cache, falling back to the upstream and
// caching what it returns. Cache failures degrade to an upstream call;
// upstream errors, not-found included, are returned as is and never cached.
func (c *Museums) GetMuseum(ctx context.Context, id int64) (*checkin.Museum, error) {
	m, err := c.Get(ctx, id)
	if err != nil {
		c.log.Warn("museum cache read failed", "museum_id", id, "err", err)
	}
	if m != nil {
		return m, nil
	}

	m, err = c.upstream.GetMuseum(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, m); err != nil {
		c.log.Warn("museum cache write failed", "museum_id", id, "err", err)
	}
	return m, nil
}

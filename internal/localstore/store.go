package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Store is the device-local key-value storage. Every key is namespaced by
// device so several devices can share one Redis. Values never expire.
type Store struct {
	client *redis.Client
	prefix string
}

// New constructs a Store for deviceID.
func New(client *redis.Client, deviceID string) *Store {
	return &Store{client: client, prefix: "device:" + deviceID + ":"}
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// Get returns the raw value stored under key.
// Returns nil, nil when the key is absent (not an error).
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("localstore get %s: %w", key, err)
	}
	return val, nil
}

// GetJSON decodes the value under key into dst and reports whether it was present.
func (s *Store) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.Get(ctx, key)
	if err != nil || raw == nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("unmarshaling %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v under key as JSON.
func (s *Store) SetJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.key(key), b, 0).Err(); err != nil {
		return fmt.Errorf("localstore set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys. Absent keys are ignored.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("localstore delete %v: %w", keys, err)
	}
	return nil
}

package localstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Connect opens the device store at redisURL. The connection is named after
// deviceID so a shared server can tell devices apart in CLIENT LIST.
func Connect(ctx context.Context, redisURL, deviceID string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing device store URL: %w", err)
	}
	if deviceID != "" && opts.ClientName == "" {
		opts.ClientName = "checkin:" + deviceID
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("reaching device store %s: %w", opts.Addr, err)
	}
	return client, nil
}

// Package redistest connects tests to a local redis, skipping them when none is reachable.
package redistest

import (
	"context"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// NewClient returns a client on an isolated, flushed database, or skips the test.
func NewClient(t *testing.T, db int) *redis.Client {
	t.Helper()

	addrs := []string{os.Getenv("REDIS_ADDR"), "localhost:6379", "127.0.0.1:6379"}
	var lastErr error
	for _, addr := range addrs {
		if addr == "" {
			continue
		}
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       db,
		})
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := client.Ping(ctx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			lastErr = err
			continue
		}

		if err := client.FlushDB(context.Background()).Err(); err != nil {
			_ = client.Close()
			t.Fatalf("flush redis db %d: %v", db, err)
		}
		t.Cleanup(func() {
			_ = client.FlushDB(context.Background()).Err()
			_ = client.Close()
		})
		return client
	}

	t.Skipf("Skipping Redis-dependent test: no reachable Redis endpoint (%v)", lastErr)
	return nil
}

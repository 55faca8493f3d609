package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	vk "github.com/valkey-io/valkey-go"
)

const (
	statsKey = "stats:dashboard"

	// Stats are also invalidated explicitly on stats:updated events; the TTL
	// only bounds staleness if an invalidation is missed.
	statsTTL = 5 * time.Minute
)

// StatsCache caches dashboard aggregates in Valkey so the stats endpoint does
// not hit Postgres on every dashboard refresh.
type StatsCache struct {
	client vk.Client
}

func NewStatsCache(addr string) (*StatsCache, error) {
	client, err := vk.NewClient(vk.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	return &StatsCache{client: client}, nil
}

// Get returns the cached stats document, or (nil, nil) on a cache miss.
func (c *StatsCache) Get(ctx context.Context, out any) (bool, error) {
	raw, err := c.client.Do(ctx, c.client.B().Get().Key(statsKey).Build()).ToString()
	if err != nil {
		if vk.IsValkeyNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read stats cache: %w", err)
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("failed to decode cached stats: %w", err)
	}
	return true, nil
}

// Set stores the stats document with the cache TTL.
func (c *StatsCache) Set(ctx context.Context, stats any) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}

	err = c.client.Do(ctx, c.client.B().Set().
		Key(statsKey).
		Value(string(data)).
		Ex(statsTTL).
		Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to write stats cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached stats document.
func (c *StatsCache) Invalidate(ctx context.Context) error {
	err := c.client.Do(ctx, c.client.B().Del().Key(statsKey).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to invalidate stats cache: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *StatsCache) Close() {
	c.client.Close()
}

package api

import (
	"context"
	"time"
)

// Stats is the dashboard aggregate document served by GET /api/stats.
type Stats struct {
	Total             int64            `json:"total"`
	ByStatus          map[string]int64 `json:"by_status"`
	ByEnrichmentState map[string]int64 `json:"by_enrichment_state"`
	GeneratedAt       time.Time        `json:"generated_at"`
}

// RefreshStats refetches the canonical aggregates. This is the refetch a
// stats:updated push event points consumers at; the event itself carries no
// numbers.
func (c *Client) RefreshStats(ctx context.Context) (*Stats, error) {
	var resp Stats
	if err := c.do(ctx, "GET", "/api/stats", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

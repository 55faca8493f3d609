package lead

import (
	"context"
	"time"

	"leadgrid/src/infrastructure/log"
	"leadgrid/src/storage/postgres/businessctrl"
	"leadgrid/src/storage/valkey"
)

// Stats is the dashboard aggregate document.
type Stats struct {
	Total             int64            `json:"total"`
	ByStatus          map[string]int64 `json:"by_status"`
	ByEnrichmentState map[string]int64 `json:"by_enrichment_state"`
	GeneratedAt       time.Time        `json:"generated_at"`
}

// StatsService computes dashboard aggregates, caching them in Valkey. The
// cache is invalidated when a stats:updated push event fires, so dashboards
// refetching on that event see fresh numbers.
type StatsService struct {
	businesses *businessctrl.BusinessService
	cache      *valkey.StatsCache
}

func NewStatsService(businesses *businessctrl.BusinessService, cache *valkey.StatsCache) *StatsService {
	return &StatsService{
		businesses: businesses,
		cache:      cache,
	}
}

// GetStats returns the aggregate document, served from cache when possible.
func (s *StatsService) GetStats(ctx context.Context) (*Stats, error) {
	if s.cache != nil {
		var cached Stats
		hit, err := s.cache.Get(ctx, &cached)
		if err != nil {
			log.Error(err, "stats cache read failed, falling back to database")
		} else if hit {
			return &cached, nil
		}
	}

	byStatus, err := s.businesses.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	byEnrichment, err := s.businesses.CountByEnrichmentState(ctx)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, n := range byStatus {
		total += n
	}

	stats := &Stats{
		Total:             total,
		ByStatus:          byStatus,
		ByEnrichmentState: byEnrichment,
		GeneratedAt:       time.Now().UTC(),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, stats); err != nil {
			log.Error(err, "failed to cache stats")
		}
	}

	return stats, nil
}

// Invalidate drops the cached document. Called when stats:updated arrives.
func (s *StatsService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		log.Error(err, "failed to invalidate stats cache")
	}
}

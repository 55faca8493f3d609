package enrichmentlogctrl

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Outcome of one enrichment attempt.
const (
	OutcomeEnriched = "enriched"
	OutcomeNoMatch  = "no_match"
	OutcomeError    = "error"
)

type EnrichmentLog struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	BusinessID  int64     `gorm:"not null;index" json:"business_id"`
	Provider    string    `json:"provider"`
	Outcome     string    `gorm:"not null" json:"outcome"`
	Detail      string    `json:"detail"`
	SnapshotURL string    `gorm:"column:snapshot_url" json:"snapshot_url,omitempty"` // bucket name + object name
	CreatedAt   time.Time `json:"created_at"`
}

type EnrichmentLogService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewEnrichmentLogService(db *gorm.DB) (*EnrichmentLogService, error) {
	// Initialize snowflake node
	node, err := snowflake.NewNode(3) // Node number 3 for enrichment logs
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &EnrichmentLogService{
		db:        db,
		snowflake: node,
	}, nil
}

func (s *EnrichmentLogService) Create(ctx context.Context, logEntry *EnrichmentLog) (*EnrichmentLog, error) {
	logEntry.ID = s.snowflake.Generate().Int64()

	result := s.db.WithContext(ctx).Create(logEntry)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create enrichment log: %v", result.Error)
	}

	return logEntry, nil
}

// ListByBusiness returns the enrichment history for a business, newest first
func (s *EnrichmentLogService) ListByBusiness(ctx context.Context, businessID int64, limit int) ([]EnrichmentLog, error) {
	var logs []EnrichmentLog

	result := s.db.WithContext(ctx).
		Where("business_id = ?", businessID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs)

	if result.Error != nil {
		return nil, fmt.Errorf("failed to list enrichment logs: %v", result.Error)
	}

	return logs, nil
}

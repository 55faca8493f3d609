package businessctrl

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Pipeline status of a lead.
const (
	StatusNew       = "new"
	StatusContacted = "contacted"
	StatusQualified = "qualified"
	StatusConverted = "converted"
	StatusRejected  = "rejected"
)

// Enrichment state of a lead.
const (
	EnrichmentPending  = "pending"
	EnrichmentEnriched = "enriched"
	EnrichmentFailed   = "failed"
)

type Business struct {
	ID              int64     `gorm:"primaryKey" json:"id"`
	Name            string    `gorm:"not null" json:"name"`
	Category        string    `json:"category"`
	Address         string    `json:"address"`
	Phone           string    `json:"phone"`
	Website         string    `json:"website"`
	Email           string    `json:"email"`
	Status          string    `gorm:"not null;default:new" json:"status"`
	EnrichmentState string    `gorm:"not null;default:pending;column:enrichment_state" json:"enrichment_state"`
	Region          string    `json:"region"`
	SiteText        string    `gorm:"column:site_text" json:"site_text,omitempty"`
	OutreachMessage string    `gorm:"column:outreach_message" json:"outreach_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ListFilter narrows List results. Zero values mean "any".
type ListFilter struct {
	Status          string
	Category        string
	Region          string
	EnrichmentState string
}

type BusinessService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewBusinessService(db *gorm.DB) (*BusinessService, error) {
	// Initialize snowflake node
	node, err := snowflake.NewNode(1) // Node number 1 for businesses
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &BusinessService{
		db:        db,
		snowflake: node,
	}, nil
}

func (s *BusinessService) GetByID(ctx context.Context, id int64) (*Business, error) {
	var business Business
	result := s.db.WithContext(ctx).First(&business, id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get business: %v", result.Error)
	}
	return &business, nil
}

// List returns a paginated list of businesses matching the filter
func (s *BusinessService) List(ctx context.Context, filter ListFilter, limit int, offset int) ([]Business, error) {
	var businesses []Business

	query := s.db.WithContext(ctx)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Region != "" {
		query = query.Where("region = ?", filter.Region)
	}
	if filter.EnrichmentState != "" {
		query = query.Where("enrichment_state = ?", filter.EnrichmentState)
	}

	result := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&businesses)

	if result.Error != nil {
		return nil, fmt.Errorf("failed to list businesses: %v", result.Error)
	}

	return businesses, nil
}

// FindByNameAndAddress looks up an existing lead for dedup during scraping.
func (s *BusinessService) FindByNameAndAddress(ctx context.Context, name, address string) (*Business, error) {
	var business Business
	result := s.db.WithContext(ctx).
		Where("name = ? AND address = ?", name, address).
		First(&business)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up business: %v", result.Error)
	}
	return &business, nil
}

func (s *BusinessService) Create(ctx context.Context, business *Business) (*Business, error) {
	business.ID = s.snowflake.Generate().Int64()
	if business.Status == "" {
		business.Status = StatusNew
	}
	if business.EnrichmentState == "" {
		business.EnrichmentState = EnrichmentPending
	}

	result := s.db.WithContext(ctx).Create(business)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create business: %v", result.Error)
	}

	return business, nil
}

// Update applies the given column updates to a business row.
func (s *BusinessService) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	result := s.db.WithContext(ctx).Model(&Business{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update business: %v", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("business not found: %d", id)
	}
	return nil
}

func (s *BusinessService) Delete(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Delete(&Business{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete business: %v", result.Error)
	}
	return nil
}

// ListPendingEnrichment returns up to limit businesses awaiting enrichment,
// oldest first, so batch runs drain the backlog in order.
func (s *BusinessService) ListPendingEnrichment(ctx context.Context, limit int) ([]Business, error) {
	var businesses []Business
	result := s.db.WithContext(ctx).
		Where("enrichment_state = ?", EnrichmentPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&businesses)

	if result.Error != nil {
		return nil, fmt.Errorf("failed to list pending businesses: %v", result.Error)
	}

	return businesses, nil
}

// CountByStatus returns lead counts grouped by pipeline status.
func (s *BusinessService) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return s.countGrouped(ctx, "status")
}

// CountByEnrichmentState returns lead counts grouped by enrichment state.
func (s *BusinessService) CountByEnrichmentState(ctx context.Context) (map[string]int64, error) {
	return s.countGrouped(ctx, "enrichment_state")
}

func (s *BusinessService) countGrouped(ctx context.Context, column string) (map[string]int64, error) {
	type row struct {
		Key   string
		Count int64
	}
	var rows []row

	result := s.db.WithContext(ctx).
		Model(&Business{}).
		Select(column + " as key, count(*) as count").
		Group(column).
		Scan(&rows)

	if result.Error != nil {
		return nil, fmt.Errorf("failed to count businesses: %v", result.Error)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Key] = r.Count
	}
	return counts, nil
}

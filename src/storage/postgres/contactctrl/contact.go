package contactctrl

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Contact struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	BusinessID int64     `gorm:"not null;index" json:"business_id"`
	Name       string    `gorm:"not null" json:"name"`
	Role       string    `json:"role"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ContactService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewContactService(db *gorm.DB) (*ContactService, error) {
	// Initialize snowflake node
	node, err := snowflake.NewNode(2) // Node number 2 for contacts
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &ContactService{
		db:        db,
		snowflake: node,
	}, nil
}

// ListByBusiness returns all contacts attached to a business
func (s *ContactService) ListByBusiness(ctx context.Context, businessID int64) ([]Contact, error) {
	var contacts []Contact

	result := s.db.WithContext(ctx).
		Where("business_id = ?", businessID).
		Order("created_at ASC").
		Find(&contacts)

	if result.Error != nil {
		return nil, fmt.Errorf("failed to list contacts: %v", result.Error)
	}

	return contacts, nil
}

func (s *ContactService) Create(ctx context.Context, contact *Contact) (*Contact, error) {
	contact.ID = s.snowflake.Generate().Int64()

	result := s.db.WithContext(ctx).Create(contact)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create contact: %v", result.Error)
	}

	return contact, nil
}

func (s *ContactService) Delete(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Delete(&Contact{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete contact: %v", result.Error)
	}
	return nil
}

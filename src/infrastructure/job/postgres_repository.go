package job

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"
)

var ErrJobNotFound = errors.New("job not found")

type PostgresJobRepository struct {
	db *gorm.DB
}

func NewPostgresJobRepository(db *gorm.DB) *PostgresJobRepository {
	return &PostgresJobRepository{db: db}
}

func (r *PostgresJobRepository) Create(ctx context.Context, id, taskType string, payload json.RawMessage) (*Job, error) {
	job := &Job{
		ID:       id,
		TaskType: taskType,
		Payload:  payload,
		Status:   JobStatusWaiting,
	}

	result := r.db.WithContext(ctx).Create(job)
	if result.Error != nil {
		return nil, result.Error
	}

	return job, nil
}

func (r *PostgresJobRepository) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	result := r.db.WithContext(ctx).First(&job, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}

	return &job, nil
}

func (r *PostgresJobRepository) UpdateStatus(ctx context.Context, id string, status JobStatus, failedReason *string) error {
	result := r.db.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        status,
		"failed_reason": failedReason,
	})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}

	return nil
}

func (r *PostgresJobRepository) UpdateProgress(ctx context.Context, id string, progress int, message string, itemCount, savedCount int) error {
	result := r.db.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Updates(map[string]interface{}{
		"progress":    progress,
		"message":     message,
		"item_count":  itemCount,
		"saved_count": savedCount,
	})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}

	return nil
}

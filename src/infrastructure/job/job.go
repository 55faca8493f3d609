package job

import (
	"context"
	"encoding/json"
	"time"
)

// JobStatus defines the status of a job. Waiting, active and delayed are the
// in-flight states; completed and failed are terminal and never transition
// further.
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusActive    JobStatus = "active"
	JobStatusDelayed   JobStatus = "delayed"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// InFlight reports whether the status still allows transitions.
func (s JobStatus) InFlight() bool {
	switch s {
	case JobStatusWaiting, JobStatusActive, JobStatusDelayed:
		return true
	}
	return false
}

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Task types understood by the worker.
const (
	TaskTypeScrape      = "scrape"
	TaskTypeEnrichBatch = "enrich_batch"
	TaskTypeOutreach    = "outreach"
)

// Job represents a background job. The row is written by the dispatching
// handler (creation) and the worker (everything after); API consumers observe
// it read-only through GET /api/jobs/:id.
type Job struct {
	ID           string          `json:"id" gorm:"primaryKey"`
	TaskType     string          `json:"task_type"`
	Payload      json.RawMessage `json:"payload"`
	Status       JobStatus       `json:"status"`
	Progress     int             `json:"progress"`
	Message      string          `json:"message"`
	FailedReason *string         `json:"failed_reason,omitempty"`
	ItemCount    int             `json:"item_count"`
	SavedCount   int             `json:"saved_count"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// JobRepository defines the interface for job persistence
type JobRepository interface {
	Create(ctx context.Context, id, taskType string, payload json.RawMessage) (*Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	UpdateStatus(ctx context.Context, id string, status JobStatus, failedReason *string) error
	UpdateProgress(ctx context.Context, id string, progress int, message string, itemCount, savedCount int) error
}

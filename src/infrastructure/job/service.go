package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"leadgrid/src/push"
)

// JobsTopic is the queue topic carrying dispatched jobs to the worker.
const JobsTopic = "jobs"

// TaskResult carries the final counters a task produced.
type TaskResult struct {
	Message    string
	ItemCount  int
	SavedCount int
}

// ProgressFunc lets a running task report progress (0-100) together with the
// latest counters. Implementations persist the values and push a progress
// event; both are best-effort.
type ProgressFunc func(ctx context.Context, progress int, message string, itemCount, savedCount int)

// Task executes one task type. Run must be safe to retry: the queue redelivers
// on failure.
type Task interface {
	Type() string
	Run(ctx context.Context, jobID string, payload json.RawMessage, report ProgressFunc) (TaskResult, error)
}

type JobService struct {
	publisher message.Publisher
	repo      JobRepository
	events    push.Publisher
	logger    watermill.LoggerAdapter
	tasks     map[string]Task
}

func NewJobService(
	publisher message.Publisher,
	repo JobRepository,
	events push.Publisher,
	logger watermill.LoggerAdapter,
	tasks ...Task,
) *JobService {
	byType := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		byType[t.Type()] = t
	}

	return &JobService{
		publisher: publisher,
		repo:      repo,
		events:    events,
		logger:    logger,
		tasks:     byType,
	}
}

type JobMessage struct {
	JobID    string          `json:"job_id"`
	TaskType string          `json:"task_type"`
	Payload  json.RawMessage `json:"payload"`
}

// EnqueueJob creates a new job in the waiting state and publishes it to the
// message queue. The returned job carries the opaque identifier clients poll.
func (s *JobService) EnqueueJob(ctx context.Context, taskType string, payload json.RawMessage) (*Job, error) {
	job, err := s.repo.Create(ctx, uuid.NewString(), taskType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	jobMsg := JobMessage{
		JobID:    job.ID,
		TaskType: job.TaskType,
		Payload:  job.Payload,
	}

	msgPayload, err := json.Marshal(jobMsg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), msgPayload)
	if err := s.publisher.Publish(JobsTopic, msg); err != nil {
		return nil, fmt.Errorf("failed to publish job message: %w", err)
	}

	return job, nil
}

// GetJob returns the current job row, or nil when the id is unknown.
func (s *JobService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.Get(ctx, id)
}

// ProcessJobMessage processes a job message from the queue: it marks the job
// active, runs the matching task and writes the terminal state. Push events
// mirror the terminal transition so dashboards can refresh early.
func (s *JobService) ProcessJobMessage(msg *message.Message) error {
	var jobMsg JobMessage
	if err := json.Unmarshal(msg.Payload, &jobMsg); err != nil {
		return fmt.Errorf("failed to unmarshal job message: %w", err)
	}

	ctx := context.Background()

	job, err := s.repo.Get(ctx, jobMsg.JobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", jobMsg.JobID)
	}
	if job.Status.Terminal() {
		// Redelivery of an already-finished job.
		return nil
	}

	task, ok := s.tasks[job.TaskType]
	if !ok {
		reason := fmt.Sprintf("unknown task type: %s", job.TaskType)
		if updateErr := s.repo.UpdateStatus(ctx, job.ID, JobStatusFailed, &reason); updateErr != nil {
			s.logger.Error("Failed to mark job with unknown task type as failed", updateErr, watermill.LogFields{
				"job_id": job.ID,
			})
		}
		return fmt.Errorf("%s", reason)
	}

	if err := s.repo.UpdateStatus(ctx, job.ID, JobStatusActive, nil); err != nil {
		return fmt.Errorf("failed to update job status to active: %w", err)
	}

	report := func(ctx context.Context, progress int, message string, itemCount, savedCount int) {
		s.recordProgress(ctx, job, progress, message, itemCount, savedCount)
	}

	result, err := task.Run(ctx, job.ID, job.Payload, report)

	if err != nil {
		reason := err.Error()
		if updateErr := s.repo.UpdateStatus(ctx, job.ID, JobStatusFailed, &reason); updateErr != nil {
			s.logger.Error("Failed to update job status to failed", updateErr, watermill.LogFields{
				"job_id": job.ID,
			})
		}
		s.publishTerminal(ctx, job, false, TaskResult{Message: reason})
		return fmt.Errorf("failed to process job: %w", err)
	}

	if err := s.repo.UpdateProgress(ctx, job.ID, 100, result.Message, result.ItemCount, result.SavedCount); err != nil {
		s.logger.Error("Failed to record final job progress", err, watermill.LogFields{
			"job_id": job.ID,
		})
	}
	if err := s.repo.UpdateStatus(ctx, job.ID, JobStatusCompleted, nil); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	s.publishTerminal(ctx, job, true, result)
	return nil
}

// recordProgress persists a progress snapshot and pushes a progress event.
// Both are advisory; polling remains the source of truth, so failures here
// only get logged.
func (s *JobService) recordProgress(ctx context.Context, j *Job, progress int, message string, itemCount, savedCount int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	if err := s.repo.UpdateProgress(ctx, j.ID, progress, message, itemCount, savedCount); err != nil {
		s.logger.Error("Failed to record job progress", err, watermill.LogFields{
			"job_id": j.ID,
		})
	}

	if j.TaskType != TaskTypeScrape {
		return
	}
	payload := map[string]any{
		"jobId":    j.ID,
		"progress": progress,
		"found":    itemCount,
		"saved":    savedCount,
	}
	if err := s.events.Publish(ctx, push.ScrapingProgress, payload); err != nil {
		s.logger.Error("Failed to publish progress event", err, watermill.LogFields{
			"job_id": j.ID,
		})
	}
}

// publishTerminal emits the push events matching a finished job. Event
// delivery is best-effort: the job row already carries the terminal state.
func (s *JobService) publishTerminal(ctx context.Context, j *Job, completed bool, result TaskResult) {
	var kind push.Kind
	switch j.TaskType {
	case TaskTypeScrape:
		kind = push.ScrapingCompleted
		if !completed {
			kind = push.ScrapingFailed
		}
	case TaskTypeEnrichBatch:
		kind = push.EnrichmentCompleted
		if !completed {
			kind = push.EnrichmentFailed
		}
	default:
		kind = push.StatsUpdated
	}

	payload := map[string]any{
		"jobId": j.ID,
		"found": result.ItemCount,
		"saved": result.SavedCount,
	}
	if !completed {
		payload["reason"] = result.Message
	}

	if err := s.events.Publish(ctx, kind, payload); err != nil {
		s.logger.Error("Failed to publish terminal job event", err, watermill.LogFields{
			"job_id": j.ID,
			"kind":   string(kind),
		})
	}

	if completed && kind != push.StatsUpdated {
		if err := s.events.Publish(ctx, push.StatsUpdated, nil); err != nil {
			s.logger.Error("Failed to publish stats invalidation", err, watermill.LogFields{
				"job_id": j.ID,
			})
		}
	}
}

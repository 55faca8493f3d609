package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"leadgrid/src/infrastructure/job"
	"leadgrid/src/push"
)

type memoryRepo struct {
	mu   sync.Mutex
	jobs map[string]*job.Job
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{jobs: make(map[string]*job.Job)}
}

func (r *memoryRepo) Create(ctx context.Context, id, taskType string, payload json.RawMessage) (*job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j := &job.Job{ID: id, TaskType: taskType, Payload: payload, Status: job.JobStatusWaiting}
	r.jobs[id] = j
	row := *j
	return &row, nil
}

func (r *memoryRepo) Get(ctx context.Context, id string) (*job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	row := *j
	return &row, nil
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, id string, status job.JobStatus, failedReason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return job.ErrJobNotFound
	}
	j.Status = status
	j.FailedReason = failedReason
	return nil
}

func (r *memoryRepo) UpdateProgress(ctx context.Context, id string, progress int, message string, itemCount, savedCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return job.ErrJobNotFound
	}
	j.Progress = progress
	j.Message = message
	j.ItemCount = itemCount
	j.SavedCount = savedCount
	return nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	topics []string
	msgs   []*message.Message
}

func (p *capturingPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range messages {
		p.topics = append(p.topics, topic)
		p.msgs = append(p.msgs, m)
	}
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

type capturingEvents struct {
	mu    sync.Mutex
	kinds []push.Kind
}

func (e *capturingEvents) Publish(ctx context.Context, kind push.Kind, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.kinds = append(e.kinds, kind)
	return nil
}

func (e *capturingEvents) published() []push.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]push.Kind, len(e.kinds))
	copy(out, e.kinds)
	return out
}

type fakeTask struct {
	taskType string
	result   job.TaskResult
	err      error
	runs     int
	onRun    func(report job.ProgressFunc)
}

func (t *fakeTask) Type() string { return t.taskType }

func (t *fakeTask) Run(ctx context.Context, jobID string, payload json.RawMessage, report job.ProgressFunc) (job.TaskResult, error) {
	t.runs++
	if t.onRun != nil {
		t.onRun(report)
	}
	return t.result, t.err
}

func newService(repo job.JobRepository, pub message.Publisher, events push.Publisher, tasks ...job.Task) *job.JobService {
	return job.NewJobService(pub, repo, events, watermill.NopLogger{}, tasks...)
}

func TestEnqueueJob(t *testing.T) {
	repo := newMemoryRepo()
	pub := &capturingPublisher{}
	events := &capturingEvents{}
	s := newService(repo, pub, events)

	j, err := s.EnqueueJob(context.Background(), job.TaskTypeScrape, json.RawMessage(`{"region":"berlin"}`))
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if j.ID == "" {
		t.Fatal("job has no identifier")
	}
	if j.Status != job.JobStatusWaiting {
		t.Errorf("Status = %q, want waiting", j.Status)
	}

	if len(pub.msgs) != 1 || pub.topics[0] != job.JobsTopic {
		t.Fatalf("published %d messages to %v, want 1 on %q", len(pub.msgs), pub.topics, job.JobsTopic)
	}

	var msg job.JobMessage
	if err := json.Unmarshal(pub.msgs[0].Payload, &msg); err != nil {
		t.Fatalf("message payload: %v", err)
	}
	if msg.JobID != j.ID || msg.TaskType != job.TaskTypeScrape {
		t.Errorf("message = %+v", msg)
	}
}

func TestProcessJobCompletes(t *testing.T) {
	repo := newMemoryRepo()
	pub := &capturingPublisher{}
	events := &capturingEvents{}
	task := &fakeTask{
		taskType: job.TaskTypeScrape,
		result:   job.TaskResult{Message: "scraped 12 listings", ItemCount: 12, SavedCount: 10},
	}
	s := newService(repo, pub, events, task)

	j, err := s.EnqueueJob(context.Background(), job.TaskTypeScrape, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	if err := s.ProcessJobMessage(pub.msgs[0]); err != nil {
		t.Fatalf("ProcessJobMessage: %v", err)
	}

	got, _ := s.GetJob(context.Background(), j.ID)
	if got.Status != job.JobStatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.Progress != 100 || got.ItemCount != 12 || got.SavedCount != 10 {
		t.Errorf("final row = %+v", got)
	}

	kinds := events.published()
	if len(kinds) != 2 || kinds[0] != push.ScrapingCompleted || kinds[1] != push.StatsUpdated {
		t.Errorf("events = %v, want [scraping:completed stats:updated]", kinds)
	}
}

func TestProcessJobFails(t *testing.T) {
	repo := newMemoryRepo()
	pub := &capturingPublisher{}
	events := &capturingEvents{}
	task := &fakeTask{
		taskType: job.TaskTypeScrape,
		err:      errors.New("scraper backend unreachable"),
	}
	s := newService(repo, pub, events, task)

	j, _ := s.EnqueueJob(context.Background(), job.TaskTypeScrape, json.RawMessage(`{}`))

	if err := s.ProcessJobMessage(pub.msgs[0]); err == nil {
		t.Fatal("expected processing error")
	}

	got, _ := s.GetJob(context.Background(), j.ID)
	if got.Status != job.JobStatusFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}
	if got.FailedReason == nil || *got.FailedReason != "scraper backend unreachable" {
		t.Errorf("FailedReason = %v", got.FailedReason)
	}

	kinds := events.published()
	if len(kinds) != 1 || kinds[0] != push.ScrapingFailed {
		t.Errorf("events = %v, want [scraping:failed]", kinds)
	}
}

func TestProcessJobTerminalRedelivery(t *testing.T) {
	repo := newMemoryRepo()
	pub := &capturingPublisher{}
	events := &capturingEvents{}
	task := &fakeTask{taskType: job.TaskTypeScrape}
	s := newService(repo, pub, events, task)

	_, _ = s.EnqueueJob(context.Background(), job.TaskTypeScrape, json.RawMessage(`{}`))
	msg := pub.msgs[0]

	if err := s.ProcessJobMessage(msg); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := s.ProcessJobMessage(msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	if task.runs != 1 {
		t.Errorf("task ran %d times, want 1", task.runs)
	}
}

func TestProcessJobUnknownTaskType(t *testing.T) {
	repo := newMemoryRepo()
	pub := &capturingPublisher{}
	events := &capturingEvents{}
	s := newService(repo, pub, events)

	j, _ := s.EnqueueJob(context.Background(), "no_such_task", json.RawMessage(`{}`))

	if err := s.ProcessJobMessage(pub.msgs[0]); err == nil {
		t.Fatal("expected error for unknown task type")
	}

	got, _ := s.GetJob(context.Background(), j.ID)
	if got.Status != job.JobStatusFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}
}

func TestProgressClampedAndPushed(t *testing.T) {
	repo := newMemoryRepo()
	pub := &capturingPublisher{}
	events := &capturingEvents{}
	task := &fakeTask{
		taskType: job.TaskTypeScrape,
		result:   job.TaskResult{ItemCount: 3, SavedCount: 3},
		onRun: func(report job.ProgressFunc) {
			report(context.Background(), 150, "over", 3, 3)
		},
	}
	s := newService(repo, pub, events, task)

	j, _ := s.EnqueueJob(context.Background(), job.TaskTypeScrape, json.RawMessage(`{}`))

	var maxSeen int
	origOnRun := task.onRun
	task.onRun = func(report job.ProgressFunc) {
		origOnRun(report)
		got, _ := s.GetJob(context.Background(), j.ID)
		maxSeen = got.Progress
	}

	if err := s.ProcessJobMessage(pub.msgs[0]); err != nil {
		t.Fatalf("ProcessJobMessage: %v", err)
	}

	if maxSeen != 100 {
		t.Errorf("mid-run progress = %d, want clamped to 100", maxSeen)
	}

	kinds := events.published()
	if kinds[0] != push.ScrapingProgress {
		t.Errorf("first event = %q, want scraping:progress", kinds[0])
	}
}

func TestEnrichBatchTerminalEvents(t *testing.T) {
	repo := newMemoryRepo()
	pub := &capturingPublisher{}
	events := &capturingEvents{}
	task := &fakeTask{
		taskType: job.TaskTypeEnrichBatch,
		result:   job.TaskResult{ItemCount: 5, SavedCount: 4},
	}
	s := newService(repo, pub, events, task)

	_, _ = s.EnqueueJob(context.Background(), job.TaskTypeEnrichBatch, json.RawMessage(`{}`))

	if err := s.ProcessJobMessage(pub.msgs[0]); err != nil {
		t.Fatalf("ProcessJobMessage: %v", err)
	}

	kinds := events.published()
	if len(kinds) != 2 || kinds[0] != push.EnrichmentCompleted || kinds[1] != push.StatsUpdated {
		t.Errorf("events = %v, want [enrichment:completed stats:updated]", kinds)
	}
}

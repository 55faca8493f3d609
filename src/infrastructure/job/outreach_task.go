package job

import (
	"context"
	"encoding/json"
	"fmt"

	"leadgrid/src/core/lead"
)

// OutreachPayload identifies the business to write outreach copy for.
type OutreachPayload struct {
	BusinessID int64 `json:"business_id"`
}

// OutreachTask generates an outreach message for one business in the
// background. The REST endpoint also serves generation synchronously; this
// task exists for bulk flows triggered from the dashboard.
type OutreachTask struct {
	outreach *lead.OutreachService
}

func NewOutreachTask(outreach *lead.OutreachService) *OutreachTask {
	return &OutreachTask{outreach: outreach}
}

func (t *OutreachTask) Type() string {
	return TaskTypeOutreach
}

func (t *OutreachTask) Run(ctx context.Context, jobID string, payload json.RawMessage, report ProgressFunc) (TaskResult, error) {
	var p OutreachPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return TaskResult{}, fmt.Errorf("failed to unmarshal outreach payload: %w", err)
	}

	report(ctx, 10, "Generating outreach message", 0, 0)

	if _, err := t.outreach.Generate(ctx, p.BusinessID); err != nil {
		return TaskResult{}, err
	}

	return TaskResult{
		Message:    "Outreach message generated",
		ItemCount:  1,
		SavedCount: 1,
	}, nil
}

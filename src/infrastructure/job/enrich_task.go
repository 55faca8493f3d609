package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"leadgrid/src/infrastructure/integrations/enrich"
	"leadgrid/src/infrastructure/log"
	"leadgrid/src/push"
	"leadgrid/src/storage/minioctrl"
	"leadgrid/src/storage/postgres/businessctrl"
	"leadgrid/src/storage/postgres/contactctrl"
	"leadgrid/src/storage/postgres/enrichmentlogctrl"
)

// EnrichBatchPayload lists the businesses a batch run should enrich. The
// dispatching handler selects them so the API can answer with queued/skipped
// counts synchronously.
type EnrichBatchPayload struct {
	BusinessIDs []int64 `json:"business_ids"`
}

// EnrichBatchTask enriches a batch of businesses against the third-party
// provider, one at a time, logging every attempt.
type EnrichBatchTask struct {
	enricher   *enrich.Client
	businesses *businessctrl.BusinessService
	contacts   *contactctrl.ContactService
	logs       *enrichmentlogctrl.EnrichmentLogService
	minio      *minioctrl.MinioService
	events     push.Publisher
}

func NewEnrichBatchTask(
	enricher *enrich.Client,
	businesses *businessctrl.BusinessService,
	contacts *contactctrl.ContactService,
	logs *enrichmentlogctrl.EnrichmentLogService,
	minioService *minioctrl.MinioService,
	events push.Publisher,
) *EnrichBatchTask {
	return &EnrichBatchTask{
		enricher:   enricher,
		businesses: businesses,
		contacts:   contacts,
		logs:       logs,
		minio:      minioService,
		events:     events,
	}
}

func (t *EnrichBatchTask) Type() string {
	return TaskTypeEnrichBatch
}

func (t *EnrichBatchTask) Run(ctx context.Context, jobID string, payload json.RawMessage, report ProgressFunc) (TaskResult, error) {
	var p EnrichBatchPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return TaskResult{}, fmt.Errorf("failed to unmarshal enrich payload: %w", err)
	}
	if len(p.BusinessIDs) == 0 {
		return TaskResult{Message: "No businesses to enrich"}, nil
	}

	var enriched, failed int
	for i, id := range p.BusinessIDs {
		if err := t.enrichOne(ctx, jobID, id); err != nil {
			failed++
			log.Error(err, "enrichment failed", "business_id", id)
		} else {
			enriched++
		}

		progress := (i + 1) * 100 / len(p.BusinessIDs)
		if progress > 99 {
			progress = 99
		}
		report(ctx, progress, fmt.Sprintf("Enriched %d of %d", enriched, len(p.BusinessIDs)), len(p.BusinessIDs), enriched)
	}

	// Individual failures are recorded per business; the batch itself only
	// fails when nothing succeeded.
	if enriched == 0 && failed > 0 {
		return TaskResult{}, fmt.Errorf("all %d enrichment attempts failed", failed)
	}

	return TaskResult{
		Message:    fmt.Sprintf("Enriched %d of %d businesses", enriched, len(p.BusinessIDs)),
		ItemCount:  len(p.BusinessIDs),
		SavedCount: enriched,
	}, nil
}

func (t *EnrichBatchTask) enrichOne(ctx context.Context, jobID string, businessID int64) error {
	business, err := t.businesses.GetByID(ctx, businessID)
	if err != nil {
		return err
	}
	if business == nil {
		return fmt.Errorf("business not found: %d", businessID)
	}

	resp, err := t.enricher.Enrich(ctx, enrich.EnrichRequest{
		Name:    business.Name,
		Website: business.Website,
		Phone:   business.Phone,
		Address: business.Address,
	})
	if err != nil {
		outcome := enrichmentlogctrl.OutcomeError
		var noMatch *enrich.ErrNoMatch
		if errors.As(err, &noMatch) {
			outcome = enrichmentlogctrl.OutcomeNoMatch
		}
		t.recordOutcome(ctx, businessID, outcome, err.Error(), "")

		if updateErr := t.businesses.Update(ctx, businessID, map[string]interface{}{
			"enrichment_state": businessctrl.EnrichmentFailed,
		}); updateErr != nil {
			log.Error(updateErr, "failed to mark business enrichment failed", "business_id", businessID)
		}
		return err
	}

	snapshotURL := ""
	if len(resp.Raw) > 0 && t.minio != nil {
		objectName := fmt.Sprintf("%s/business-%d.json", jobID, businessID)
		url, err := t.minio.PutSnapshot(ctx, minioctrl.EnrichmentSnapshotsBucket, objectName, resp.Raw)
		if err != nil {
			log.Error(err, "failed to archive enrichment snapshot", "object", objectName)
		} else {
			snapshotURL = url
		}
	}

	updates := map[string]interface{}{
		"enrichment_state": businessctrl.EnrichmentEnriched,
	}
	if resp.Email != "" {
		updates["email"] = resp.Email
	}
	if resp.SiteText != "" {
		updates["site_text"] = resp.SiteText
	}
	if err := t.businesses.Update(ctx, businessID, updates); err != nil {
		return err
	}

	for _, record := range resp.Contacts {
		if _, err := t.contacts.Create(ctx, &contactctrl.Contact{
			BusinessID: businessID,
			Name:       record.Name,
			Role:       record.Role,
			Email:      record.Email,
			Phone:      record.Phone,
		}); err != nil {
			log.Error(err, "failed to save enriched contact", "business_id", businessID)
		}
	}

	t.recordOutcome(ctx, businessID, enrichmentlogctrl.OutcomeEnriched, resp.Detail, snapshotURL)

	if err := t.events.Publish(ctx, push.BusinessEnriched, map[string]any{
		"businessId": businessID,
	}); err != nil {
		log.Error(err, "failed to publish business enriched event", "business_id", businessID)
	}

	return nil
}

func (t *EnrichBatchTask) recordOutcome(ctx context.Context, businessID int64, outcome, detail, snapshotURL string) {
	if _, err := t.logs.Create(ctx, &enrichmentlogctrl.EnrichmentLog{
		BusinessID:  businessID,
		Provider:    "enrich-api",
		Outcome:     outcome,
		Detail:      detail,
		SnapshotURL: snapshotURL,
	}); err != nil {
		log.Error(err, "failed to write enrichment log", "business_id", businessID)
	}
}

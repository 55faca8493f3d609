package api

import (
	"context"
	"fmt"
)

// Job state vocabulary reported by GET /api/jobs/:id.
const (
	JobWaiting   = "waiting"
	JobActive    = "active"
	JobDelayed   = "delayed"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// ScrapeRequest dispatches a map scraping run.
type ScrapeRequest struct {
	Region   string `json:"region"`
	Query    string `json:"query"`
	MaxPages int    `json:"maxPages,omitempty"`
}

// ScrapeDispatch is the server's answer to a scrape dispatch.
type ScrapeDispatch struct {
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Found   int    `json:"found"`
	Saved   int    `json:"saved"`
	Message string `json:"message"`
}

// JobStatus is one polled snapshot of a background job.
type JobStatus struct {
	Status       string  `json:"status"`
	Progress     int     `json:"progress"`
	FailedReason *string `json:"failedReason,omitempty"`
	ItemCount    int     `json:"itemCount"`
	Saved        int     `json:"saved"`
	Message      string  `json:"message"`
}

// BatchResult is the synchronous answer to a batch enrichment dispatch.
type BatchResult struct {
	JobID   string `json:"jobId"`
	Queued  int    `json:"queued"`
	Skipped int    `json:"skipped"`
	Errors  int    `json:"errors"`
}

// DispatchScrape starts a scraping job and returns its identifier.
func (c *Client) DispatchScrape(ctx context.Context, req ScrapeRequest) (*ScrapeDispatch, error) {
	var resp ScrapeDispatch
	if err := c.do(ctx, "POST", "/api/scrape", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetJobStatus fetches the current snapshot of a job.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	var resp JobStatus
	if err := c.do(ctx, "GET", "/api/jobs/"+jobID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProcessEnrichmentBatch asks the server to enrich up to count businesses.
func (c *Client) ProcessEnrichmentBatch(ctx context.Context, count int) (*BatchResult, error) {
	if count <= 0 {
		return nil, fmt.Errorf("count must be positive")
	}
	var resp BatchResult
	if err := c.do(ctx, "POST", "/api/enrich/batch/process", map[string]int{"count": count}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

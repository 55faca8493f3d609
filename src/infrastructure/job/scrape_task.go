package job

import (
	"context"
	"encoding/json"
	"fmt"

	"leadgrid/src/core/lead"
	"leadgrid/src/infrastructure/integrations/scraper"
	"leadgrid/src/infrastructure/log"
	"leadgrid/src/push"
	"leadgrid/src/storage/minioctrl"
	"leadgrid/src/storage/postgres/businessctrl"
)

// ScrapePayload is the work order for one map scraping run.
type ScrapePayload struct {
	Region   string `json:"region"`
	Query    string `json:"query"`
	MaxPages int    `json:"max_pages,omitempty"`
}

const defaultMaxPages = 25

// ScrapeTask pulls listings from the headless scraper service page by page,
// persists new businesses and archives raw snapshots.
type ScrapeTask struct {
	scraper    *scraper.Client
	businesses *businessctrl.BusinessService
	minio      *minioctrl.MinioService
	similarity *lead.SimilarityService
	events     push.Publisher
}

func NewScrapeTask(
	scraperClient *scraper.Client,
	businesses *businessctrl.BusinessService,
	minioService *minioctrl.MinioService,
	similarity *lead.SimilarityService,
	events push.Publisher,
) *ScrapeTask {
	return &ScrapeTask{
		scraper:    scraperClient,
		businesses: businesses,
		minio:      minioService,
		similarity: similarity,
		events:     events,
	}
}

func (t *ScrapeTask) Type() string {
	return TaskTypeScrape
}

func (t *ScrapeTask) Run(ctx context.Context, jobID string, payload json.RawMessage, report ProgressFunc) (TaskResult, error) {
	var p ScrapePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return TaskResult{}, fmt.Errorf("failed to unmarshal scrape payload: %w", err)
	}
	if p.Region == "" {
		return TaskResult{}, fmt.Errorf("scrape payload missing region")
	}
	maxPages := p.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	var found, saved int
	for page := 0; page < maxPages; page++ {
		resp, err := t.scraper.ScrapePage(ctx, scraper.ScrapeRequest{
			Region: p.Region,
			Query:  p.Query,
			Page:   page,
		})
		if err != nil {
			return TaskResult{}, fmt.Errorf("failed to scrape page %d: %w", page, err)
		}

		for i, listing := range resp.Listings {
			found++
			if t.saveListing(ctx, jobID, page, i, p.Region, listing) {
				saved++
			}
		}

		progress := pageProgress(found, resp.Total, page, maxPages)
		report(ctx, progress, fmt.Sprintf("Scraped %d listings", found), found, saved)

		if !resp.HasMore {
			break
		}
	}

	return TaskResult{
		Message:    fmt.Sprintf("Scraped %d listings, %d new", found, saved),
		ItemCount:  found,
		SavedCount: saved,
	}, nil
}

// saveListing persists one listing, returning true when a new business row
// was created. Snapshot archiving and similarity indexing are best-effort.
func (t *ScrapeTask) saveListing(ctx context.Context, jobID string, page, index int, region string, listing scraper.Listing) bool {
	existing, err := t.businesses.FindByNameAndAddress(ctx, listing.Name, listing.Address)
	if err != nil {
		log.Error(err, "dedup lookup failed, skipping listing", "name", listing.Name)
		return false
	}
	if existing != nil {
		return false
	}

	business, err := t.businesses.Create(ctx, &businessctrl.Business{
		Name:     listing.Name,
		Category: listing.Category,
		Address:  listing.Address,
		Phone:    listing.Phone,
		Website:  listing.Website,
		Email:    listing.Email,
		Region:   region,
	})
	if err != nil {
		log.Error(err, "failed to save scraped business", "name", listing.Name)
		return false
	}

	if len(listing.Raw) > 0 && t.minio != nil {
		objectName := fmt.Sprintf("%s/page-%d-item-%d.json", jobID, page, index)
		if _, err := t.minio.PutSnapshot(ctx, minioctrl.ScrapeSnapshotsBucket, objectName, listing.Raw); err != nil {
			log.Error(err, "failed to archive scrape snapshot", "object", objectName)
		}
	}

	if t.similarity != nil {
		if err := t.similarity.Index(ctx, business); err != nil {
			log.Error(err, "failed to index business for similarity search", "business_id", business.ID)
		}
	}

	if err := t.events.Publish(ctx, push.BusinessCreated, map[string]any{
		"businessId": business.ID,
		"name":       business.Name,
	}); err != nil {
		log.Error(err, "failed to publish business created event", "business_id", business.ID)
	}

	return true
}

// pageProgress maps scraping position onto 0-99; 100 is written only with the
// terminal completed status.
func pageProgress(found, total, page, maxPages int) int {
	var progress int
	if total > 0 {
		progress = found * 100 / total
	} else {
		progress = (page + 1) * 100 / maxPages
	}
	if progress > 99 {
		progress = 99
	}
	return progress
}

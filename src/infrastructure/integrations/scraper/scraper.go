package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	DefaultURL = "http://localhost:3100"

	// Page size requested from the headless browser service. Small pages keep
	// progress reporting responsive.
	DefaultPageSize = 20
)

// Listing is one scraped map result. Raw preserves the provider's full
// payload so it can be archived alongside the normalized fields.
type Listing struct {
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Address  string          `json:"address"`
	Phone    string          `json:"phone"`
	Website  string          `json:"website"`
	Email    string          `json:"email"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// ScrapeRequest asks the provider for one page of results in a region.
type ScrapeRequest struct {
	Region   string `json:"region"`
	Query    string `json:"query"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// ScrapeResponse is one page of scraped listings.
type ScrapeResponse struct {
	Listings []Listing `json:"listings"`
	HasMore  bool      `json:"has_more"`
	Total    int       `json:"total"`
}

// Client talks to the headless-browser scraping service.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new scraper service client
func NewClient(baseURL string, c *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}

	return &Client{
		httpClient: c,
		baseURL:    baseURL,
	}
}

// ScrapePage fetches one page of listings for the given region and query.
func (c *Client) ScrapePage(ctx context.Context, req ScrapeRequest) (*ScrapeResponse, error) {
	if req.PageSize <= 0 {
		req.PageSize = DefaultPageSize
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/scrape", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scraper service returned status %d", resp.StatusCode)
	}

	var result ScrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	return &result, nil
}

package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	DefaultURL = "http://localhost:3200"
)

// ErrNoMatch is returned when the provider has no data for a business.
type ErrNoMatch struct {
	Name string
}

func (e *ErrNoMatch) Error() string {
	return fmt.Sprintf("no enrichment match for %q", e.Name)
}

// EnrichRequest identifies the business to look up.
type EnrichRequest struct {
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// ContactRecord is one person the provider associated with the business.
type ContactRecord struct {
	Name  string `json:"name"`
	Role  string `json:"role"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// EnrichResponse is the provider's view of the business.
type EnrichResponse struct {
	Email     string          `json:"email"`
	Contacts  []ContactRecord `json:"contacts"`
	Detail    string          `json:"detail"`
	SiteText  string          `json:"site_text,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
	Matched   bool            `json:"matched"`
	Provider  string          `json:"provider"`
	CreditsUsed int           `json:"credits_used"`
}

// Client talks to the third-party enrichment API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a new enrichment API client
func NewClient(baseURL, apiKey string, c *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}

	return &Client{
		httpClient: c,
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// Enrich looks up a single business with the provider.
func (c *Client) Enrich(ctx context.Context, req EnrichRequest) (*EnrichResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/enrich", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &ErrNoMatch{Name: req.Name}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("enrichment service returned status %d", resp.StatusCode)
	}

	var result EnrichResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	if !result.Matched {
		return nil, &ErrNoMatch{Name: req.Name}
	}

	return &result, nil
}

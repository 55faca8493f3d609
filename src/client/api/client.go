// Package api is the typed REST client used by CLI tools and dashboard
// bridges. It owns token handling: an expired access token is refreshed once
// and the failed request replayed, so callers never see auth expiry.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	DefaultURL = "http://localhost:8080"

	// Ambient timeout for every call, including job status polls.
	DefaultTimeout = 30 * time.Second
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Client is a leadgrid REST API client.
type Client struct {
	httpClient *http.Client
	baseURL    string

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// NewClient creates a new API client. Passing a nil http.Client installs one
// with the default timeout.
func NewClient(baseURL string, c *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if c == nil {
		c = &http.Client{Timeout: DefaultTimeout}
	}

	return &Client{
		httpClient: c,
		baseURL:    baseURL,
	}
}

// BaseURL returns the configured API origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetTokens installs a previously issued token pair.
func (c *Client) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = access
	c.refreshToken = refresh
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Authenticate exchanges an api key for a token pair.
func (c *Client) Authenticate(ctx context.Context, apiKey string) error {
	var resp tokenResponse
	err := c.roundTrip(ctx, "POST", "/api/auth/token", map[string]string{"api_key": apiKey}, &resp, "")
	if err != nil {
		return err
	}

	c.SetTokens(resp.AccessToken, resp.RefreshToken)
	return nil
}

// do performs a request with the current access token. A 401 triggers one
// token refresh followed by a single replay; any further 401 is returned.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()

	err := c.roundTrip(ctx, method, path, body, out, token)
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.StatusCode != http.StatusUnauthorized {
		return err
	}

	if refreshErr := c.refresh(ctx); refreshErr != nil {
		return fmt.Errorf("failed to refresh expired token: %w", refreshErr)
	}

	c.mu.Lock()
	token = c.accessToken
	c.mu.Unlock()

	return c.roundTrip(ctx, method, path, body, out, token)
}

func (c *Client) refresh(ctx context.Context) error {
	c.mu.Lock()
	refreshToken := c.refreshToken
	c.mu.Unlock()

	if refreshToken == "" {
		return fmt.Errorf("no refresh token available")
	}

	var resp tokenResponse
	err := c.roundTrip(ctx, "POST", "/api/auth/refresh", map[string]string{"refresh_token": refreshToken}, &resp, "")
	if err != nil {
		return err
	}

	c.SetTokens(resp.AccessToken, resp.RefreshToken)
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out any, token string) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error marshaling request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(data, &errBody)
		msg := errBody.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("error decoding response: %w", err)
		}
	}

	return nil
}

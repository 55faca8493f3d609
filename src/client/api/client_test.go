package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"leadgrid/src/client/api"
)

// authServer simulates the token endpoints plus one protected route. Access
// tokens can be expired at will to exercise the refresh path.
type authServer struct {
	mu       sync.Mutex
	issued   int
	access   string
	refresh  string
	statuses int
}

func newAuthServer(t *testing.T) (*authServer, *httptest.Server) {
	t.Helper()
	s := &authServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/token", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			APIKey string `json:"api_key"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.APIKey != "valid-key" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid api key"})
			return
		}
		s.issue(w)
	})
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		s.mu.Lock()
		valid := body.RefreshToken == s.refresh
		s.mu.Unlock()
		if !valid {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid refresh token"})
			return
		}
		s.issue(w)
	})
	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		ok := r.Header.Get("Authorization") == "Bearer "+s.access
		s.statuses++
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "token expired"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "active",
			"progress": 42,
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *authServer) issue(w http.ResponseWriter) {
	s.mu.Lock()
	s.issued++
	s.access = fmt.Sprintf("access-%d", s.issued)
	s.refresh = fmt.Sprintf("refresh-%d", s.issued)
	access, refresh := s.access, s.refresh
	s.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]string{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

// expireAccess invalidates the current access token while keeping the
// refresh token valid, as a TTL expiry would.
func (s *authServer) expireAccess() {
	s.mu.Lock()
	s.access = "rotated-away"
	s.mu.Unlock()
}

func TestAuthenticate(t *testing.T) {
	_, srv := newAuthServer(t)
	client := api.NewClient(srv.URL, nil)

	require.NoError(t, client.Authenticate(context.Background(), "valid-key"))

	status, err := client.GetJobStatus(context.Background(), "j1")
	require.NoError(t, err)
	require.Equal(t, "active", status.Status)
	require.Equal(t, 42, status.Progress)
}

func TestAuthenticateBadKey(t *testing.T) {
	_, srv := newAuthServer(t)
	client := api.NewClient(srv.URL, nil)

	err := client.Authenticate(context.Background(), "wrong")
	require.Error(t, err)

	apiErr, ok := err.(*api.APIError)
	require.True(t, ok, "want *APIError, got %T", err)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, "invalid api key", apiErr.Message)
}

func TestExpiredTokenRefreshedAndReplayed(t *testing.T) {
	s, srv := newAuthServer(t)
	client := api.NewClient(srv.URL, nil)
	require.NoError(t, client.Authenticate(context.Background(), "valid-key"))

	s.expireAccess()

	// The caller sees a clean result: the 401, the refresh, and the replay
	// all happen inside the client.
	status, err := client.GetJobStatus(context.Background(), "j1")
	require.NoError(t, err)
	require.Equal(t, "active", status.Status)

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Equal(t, 2, s.statuses, "expected original request plus one replay")
	require.Equal(t, 2, s.issued, "expected one refresh after the initial grant")
}

func TestRefreshFailureSurfaces(t *testing.T) {
	s, srv := newAuthServer(t)
	client := api.NewClient(srv.URL, nil)
	require.NoError(t, client.Authenticate(context.Background(), "valid-key"))

	// Both tokens gone: refresh fails, and the error reaches the caller
	// instead of looping.
	s.expireAccess()
	s.mu.Lock()
	s.refresh = "rotated-away"
	s.mu.Unlock()

	_, err := client.GetJobStatus(context.Background(), "j1")
	require.Error(t, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Equal(t, 1, s.statuses, "failed refresh must not replay the request")
}

func TestNoTokensStillWorksAgainstOpenServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "completed", "progress": 100})
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, nil)
	status, err := client.GetJobStatus(context.Background(), "j1")
	require.NoError(t, err)
	require.Equal(t, "completed", status.Status)
}

func TestRefreshStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/stats" || r.Method != "GET" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"total":               12,
			"by_status":           map[string]int64{"new": 9, "contacted": 3},
			"by_enrichment_state": map[string]int64{"pending": 5},
		})
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, nil)
	stats, err := client.RefreshStats(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(12), stats.Total)
	require.Equal(t, int64(9), stats.ByStatus["new"])
	require.Equal(t, int64(5), stats.ByEnrichmentState["pending"])
}

func TestErrorBodyParsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "job not found"})
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, nil)
	_, err := client.GetJobStatus(context.Background(), "missing")
	require.Error(t, err)

	apiErr, ok := err.(*api.APIError)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	require.Equal(t, "job not found", apiErr.Message)
}

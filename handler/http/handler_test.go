package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	handler "leadgrid/handler/http"
	"leadgrid/src/infrastructure/auth"
	"leadgrid/src/push"
)

func newTestRouter(t *testing.T, apiKeys []string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := handler.NewHandler(
		nil, nil, nil, nil, nil, nil, nil,
		auth.NewStore(apiKeys),
		push.NewHub(),
	)
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, nil)

	w := doJSON(r, "GET", "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestTokenIssue(t *testing.T) {
	r := newTestRouter(t, []string{"secret-key"})

	w := doJSON(r, "POST", "/api/auth/token", `{"api_key":"secret-key"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var pair auth.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
}

func TestTokenIssueBadKey(t *testing.T) {
	r := newTestRouter(t, []string{"secret-key"})

	w := doJSON(r, "POST", "/api/auth/token", `{"api_key":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var body handler.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Error)
}

func TestTokenRefresh(t *testing.T) {
	r := newTestRouter(t, []string{"secret-key"})

	w := doJSON(r, "POST", "/api/auth/token", `{"api_key":"secret-key"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var pair auth.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))

	w = doJSON(r, "POST", "/api/auth/refresh", `{"refresh_token":"`+pair.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var next auth.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &next))
	require.NotEqual(t, pair.AccessToken, next.AccessToken)

	// Refresh tokens are single-use.
	w = doJSON(r, "POST", "/api/auth/refresh", `{"refresh_token":"`+pair.RefreshToken+`"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRouteRejectsMissingToken(t *testing.T) {
	r := newTestRouter(t, []string{"secret-key"})

	w := doJSON(r, "GET", "/api/stats", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest("GET", "/api/stats", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEmitThenPoll(t *testing.T) {
	r := newTestRouter(t, nil)

	// First poll registers the session; events broadcast after this queue up.
	w := doJSON(r, "GET", "/api/events/poll?session=s1&wait=0s", "")
	require.Equal(t, http.StatusOK, w.Code)

	ev, err := push.NewEvent(push.StatsUpdated, map[string]string{"source": "test"})
	require.NoError(t, err)
	data, err := ev.Encode()
	require.NoError(t, err)

	w = doJSON(r, "POST", "/api/events/emit?session=s1", string(data))
	require.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(r, "GET", "/api/events/poll?session=s1&wait=1s", "")
	require.Equal(t, http.StatusOK, w.Code)

	var events []push.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 1)
	require.Equal(t, push.StatsUpdated, events[0].Kind)
}

func TestEmitRejectsUnknownKind(t *testing.T) {
	r := newTestRouter(t, nil)

	w := doJSON(r, "POST", "/api/events/emit", `{"event":"bogus:kind","at":"2026-08-01T00:00:00Z"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPollRequiresSession(t *testing.T) {
	r := newTestRouter(t, nil)

	w := doJSON(r, "GET", "/api/events/poll", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

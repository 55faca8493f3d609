package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"leadgrid/src/core/lead"
	"leadgrid/src/infrastructure/auth"
	"leadgrid/src/infrastructure/job"
	"leadgrid/src/push"
	"leadgrid/src/storage/postgres/businessctrl"
	"leadgrid/src/storage/postgres/contactctrl"
	"leadgrid/src/storage/postgres/enrichmentlogctrl"
)

type Handler struct {
	businesses *businessctrl.BusinessService
	contacts   *contactctrl.ContactService
	enrichLogs *enrichmentlogctrl.EnrichmentLogService
	stats      *lead.StatsService
	similarity *lead.SimilarityService
	outreach   *lead.OutreachService
	jobs       *job.JobService
	tokens     *auth.Store
	hub        *push.Hub
}

func NewHandler(
	businesses *businessctrl.BusinessService,
	contacts *contactctrl.ContactService,
	enrichLogs *enrichmentlogctrl.EnrichmentLogService,
	stats *lead.StatsService,
	similarity *lead.SimilarityService,
	outreach *lead.OutreachService,
	jobs *job.JobService,
	tokens *auth.Store,
	hub *push.Hub,
) *Handler {
	return &Handler{
		businesses: businesses,
		contacts:   contacts,
		enrichLogs: enrichLogs,
		stats:      stats,
		similarity: similarity,
		outreach:   outreach,
		jobs:       jobs,
		tokens:     tokens,
		hub:        hub,
	}
}

// RegisterRoutes registers all API routes. Auth endpoints and the push
// endpoints stay open; everything else requires a bearer token once api keys
// are configured.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/auth/token", h.IssueToken)
	r.POST("/api/auth/refresh", h.RefreshToken)

	r.GET("/ws", h.ServeWebSocket)
	r.GET("/api/events/poll", h.PollEvents)
	r.POST("/api/events/emit", h.EmitEvent)

	api := r.Group("/api", h.RequireAuth())

	// Business routes
	api.GET("/businesses", h.ListBusinesses)
	api.POST("/businesses", h.CreateBusiness)
	api.GET("/businesses/:id", h.GetBusiness)
	api.PUT("/businesses/:id", h.UpdateBusiness)
	api.DELETE("/businesses/:id", h.DeleteBusiness)

	// Contact routes
	api.GET("/businesses/:id/contacts", h.ListContacts)
	api.POST("/businesses/:id/contacts", h.CreateContact)
	api.DELETE("/contacts/:id", h.DeleteContact)

	// Enrichment routes
	api.GET("/businesses/:id/enrichment-logs", h.ListEnrichmentLogs)
	api.POST("/businesses/:id/enrich", h.EnrichBusiness)
	api.POST("/enrich/batch/process", h.ProcessEnrichmentBatch)

	// Outreach routes
	api.POST("/businesses/:id/outreach", h.GenerateOutreach)

	// Scraping and job routes
	api.POST("/scrape", h.DispatchScrape)
	api.GET("/jobs/:id", h.GetJobStatus)

	// Stats and search routes
	api.GET("/stats", h.GetStats)
	api.GET("/search/similar", h.SearchSimilar)

	r.GET("/api/health", h.CheckHealth)
}

// ErrorResponse is the error body every endpoint returns. Clients read the
// error field; code is a stable machine-readable tag.
type ErrorResponse struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

func sendError(c *gin.Context, status int, err error) {
	code := ""
	switch {
	case errors.Is(err, lead.ErrBusinessNotFound):
		code = "NOT_FOUND"
		status = http.StatusNotFound
	case errors.Is(err, auth.ErrInvalidAPIKey),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidRefreshToken):
		code = "UNAUTHORIZED"
		status = http.StatusUnauthorized
	}

	c.JSON(status, ErrorResponse{
		Code:  code,
		Error: err.Error(),
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// CheckHealth godoc
// @Summary Liveness probe
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) CheckHealth(c *gin.Context) {
	sendJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

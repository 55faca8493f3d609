package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"leadgrid/src/infrastructure/job"
)

type scrapeRequest struct {
	Region   string `json:"region" binding:"required"`
	Query    string `json:"query" binding:"required"`
	MaxPages int    `json:"maxPages"`
}

type scrapeResponse struct {
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Found   int    `json:"found"`
	Saved   int    `json:"saved"`
	Message string `json:"message"`
}

// DispatchScrape godoc
// @Summary Start a scraping job for a region and query
// @Accept json
// @Produce json
// @Success 202 {object} scrapeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /scrape [post]
func (h *Handler) DispatchScrape(c *gin.Context) {
	var req scrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	payload, err := json.Marshal(job.ScrapePayload{
		Region:   req.Region,
		Query:    req.Query,
		MaxPages: req.MaxPages,
	})
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	dispatched, err := h.jobs.EnqueueJob(c.Request.Context(), job.TaskTypeScrape, payload)
	if err != nil {
		// A dispatch failure means no job exists; nothing was marked failed.
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusAccepted, scrapeResponse{
		JobID:   dispatched.ID,
		Status:  string(dispatched.Status),
		Message: "Scraping started",
	})
}

type jobStatusResponse struct {
	Status       string  `json:"status"`
	Progress     int     `json:"progress"`
	FailedReason *string `json:"failedReason,omitempty"`
	ItemCount    int     `json:"itemCount"`
	Saved        int     `json:"saved"`
	Message      string  `json:"message"`
}

// GetJobStatus godoc
// @Summary Get the current snapshot of a background job
// @Param id path string true "Job ID"
// @Produce json
// @Success 200 {object} jobStatusResponse
// @Failure 404 {object} ErrorResponse
// @Router /jobs/{id} [get]
func (h *Handler) GetJobStatus(c *gin.Context) {
	id := c.Param("id")

	row, err := h.jobs.GetJob(c.Request.Context(), id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	if row == nil {
		sendError(c, http.StatusNotFound, errors.New("job not found"))
		return
	}

	sendJSON(c, http.StatusOK, jobStatusResponse{
		Status:       string(row.Status),
		Progress:     row.Progress,
		FailedReason: row.FailedReason,
		ItemCount:    row.ItemCount,
		Saved:        row.SavedCount,
		Message:      row.Message,
	})
}

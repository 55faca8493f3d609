package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"leadgrid/src/core/lead"
	"leadgrid/src/infrastructure/job"
)

type batchResponse struct {
	JobID   string `json:"jobId"`
	Queued  int    `json:"queued"`
	Skipped int    `json:"skipped"`
	Errors  int    `json:"errors"`
}

// ProcessEnrichmentBatch godoc
// @Summary Enrich up to count pending leads in one background job
// @Accept json
// @Produce json
// @Success 202 {object} batchResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /enrich/batch/process [post]
func (h *Handler) ProcessEnrichmentBatch(c *gin.Context) {
	var req struct {
		Count int `json:"count" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	pending, err := h.businesses.ListPendingEnrichment(c.Request.Context(), req.Count)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	if len(pending) == 0 {
		// Nothing to do; no job is dispatched.
		sendJSON(c, http.StatusOK, batchResponse{Skipped: req.Count})
		return
	}

	ids := make([]int64, len(pending))
	for i, b := range pending {
		ids[i] = b.ID
	}

	payload, err := json.Marshal(job.EnrichBatchPayload{BusinessIDs: ids})
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	dispatched, err := h.jobs.EnqueueJob(c.Request.Context(), job.TaskTypeEnrichBatch, payload)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusAccepted, batchResponse{
		JobID:   dispatched.ID,
		Queued:  len(ids),
		Skipped: req.Count - len(ids),
	})
}

// EnrichBusiness godoc
// @Summary Enrich a single lead in the background
// @Param id path string true "Business ID"
// @Produce json
// @Success 202 {object} batchResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /businesses/{id}/enrich [post]
func (h *Handler) EnrichBusiness(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	business, err := h.businesses.GetByID(c.Request.Context(), id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	if business == nil {
		sendError(c, http.StatusNotFound, lead.ErrBusinessNotFound)
		return
	}

	payload, err := json.Marshal(job.EnrichBatchPayload{BusinessIDs: []int64{id}})
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	dispatched, err := h.jobs.EnqueueJob(c.Request.Context(), job.TaskTypeEnrichBatch, payload)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusAccepted, batchResponse{
		JobID:  dispatched.ID,
		Queued: 1,
	})
}

// ListEnrichmentLogs godoc
// @Summary Enrichment history for a lead, newest first
// @Param id path string true "Business ID"
// @Produce json
// @Success 200 {array} enrichmentlogctrl.EnrichmentLog
// @Failure 500 {object} ErrorResponse
// @Router /businesses/{id}/enrichment-logs [get]
func (h *Handler) ListEnrichmentLogs(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	limit, _ := parsePagination(c)

	logs, err := h.enrichLogs.ListByBusiness(c.Request.Context(), id, limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, logs)
}

package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetStats godoc
// @Summary Dashboard aggregates: lead counts by status and enrichment state
// @Produce json
// @Success 200 {object} lead.Stats
// @Failure 500 {object} ErrorResponse
// @Router /stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.stats.GetStats(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, stats)
}

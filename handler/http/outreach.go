package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"leadgrid/src/core/lead"
)

// GenerateOutreach godoc
// @Summary Generate an outreach message for a lead
// @Param id path string true "Business ID"
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /businesses/{id}/outreach [post]
func (h *Handler) GenerateOutreach(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	message, err := h.outreach.Generate(c.Request.Context(), id)
	if err != nil {
		if err == lead.ErrBusinessNotFound {
			sendError(c, http.StatusNotFound, err)
			return
		}
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, gin.H{"message": message})
}

package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const defaultSimilarLimit = 10

// SearchSimilar godoc
// @Summary Find leads whose profile resembles a free-text query
// @Param q query string true "Query text"
// @Param limit query int false "Maximum results"
// @Produce json
// @Success 200 {array} lead.SimilarBusiness
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /search/similar [get]
func (h *Handler) SearchSimilar(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		sendError(c, http.StatusBadRequest, errors.New("query parameter q is required"))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultSimilarLimit)))
	if limit <= 0 || limit > maxPageSize {
		limit = defaultSimilarLimit
	}

	results, err := h.similarity.Search(c.Request.Context(), query, limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, results)
}

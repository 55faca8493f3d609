package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"leadgrid/src/core/lead"
	"leadgrid/src/storage/postgres/businessctrl"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		sendError(c, http.StatusBadRequest, errors.New("invalid id"))
		return 0, false
	}
	return id, true
}

func parsePagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListBusinesses godoc
// @Summary List leads, filterable by status, category, region and enrichment state
// @Produce json
// @Success 200 {array} businessctrl.Business
// @Failure 500 {object} ErrorResponse
// @Router /businesses [get]
func (h *Handler) ListBusinesses(c *gin.Context) {
	filter := businessctrl.ListFilter{
		Status:          c.Query("status"),
		Category:        c.Query("category"),
		Region:          c.Query("region"),
		EnrichmentState: c.Query("enrichment_state"),
	}
	limit, offset := parsePagination(c)

	businesses, err := h.businesses.List(c.Request.Context(), filter, limit, offset)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, businesses)
}

// GetBusiness godoc
// @Summary Get one lead
// @Param id path string true "Business ID"
// @Produce json
// @Success 200 {object} businessctrl.Business
// @Failure 404 {object} ErrorResponse
// @Router /businesses/{id} [get]
func (h *Handler) GetBusiness(c *gin.Context) {
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
	sendJSON(c, http.StatusOK, business)
}

// CreateBusiness godoc
// @Summary Create a lead manually
// @Accept json
// @Produce json
// @Success 201 {object} businessctrl.Business
// @Failure 400 {object} ErrorResponse
// @Router /businesses [post]
func (h *Handler) CreateBusiness(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Category string `json:"category"`
		Address  string `json:"address"`
		Phone    string `json:"phone"`
		Website  string `json:"website"`
		Email    string `json:"email"`
		Region   string `json:"region"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	business, err := h.businesses.Create(c.Request.Context(), &businessctrl.Business{
		Name:     req.Name,
		Category: req.Category,
		Address:  req.Address,
		Phone:    req.Phone,
		Website:  req.Website,
		Email:    req.Email,
		Region:   req.Region,
	})
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusCreated, business)
}

// UpdateBusiness godoc
// @Summary Update lead fields, including pipeline status
// @Accept json
// @Param id path string true "Business ID"
// @Produce json
// @Success 200 {object} businessctrl.Business
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /businesses/{id} [put]
func (h *Handler) UpdateBusiness(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req map[string]interface{}
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	updates := make(map[string]interface{})
	for _, field := range []string{"name", "category", "address", "phone", "website", "email", "status", "region"} {
		if v, ok := req[field]; ok {
			updates[field] = v
		}
	}
	if len(updates) == 0 {
		sendError(c, http.StatusBadRequest, errors.New("no updatable fields in request"))
		return
	}

	if status, ok := updates["status"].(string); ok && !validStatus(status) {
		sendError(c, http.StatusBadRequest, errors.New("invalid status: "+status))
		return
	}

	if err := h.businesses.Update(c.Request.Context(), id, updates); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	business, err := h.businesses.GetByID(c.Request.Context(), id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, business)
}

func validStatus(status string) bool {
	switch status {
	case businessctrl.StatusNew, businessctrl.StatusContacted, businessctrl.StatusQualified,
		businessctrl.StatusConverted, businessctrl.StatusRejected:
		return true
	}
	return false
}

// DeleteBusiness godoc
// @Summary Delete a lead
// @Param id path string true "Business ID"
// @Success 204 "No Content"
// @Failure 500 {object} ErrorResponse
// @Router /businesses/{id} [delete]
func (h *Handler) DeleteBusiness(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.businesses.Delete(c.Request.Context(), id); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

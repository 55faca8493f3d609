package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"leadgrid/src/storage/postgres/contactctrl"
)

// ListContacts godoc
// @Summary List contacts attached to a lead
// @Param id path string true "Business ID"
// @Produce json
// @Success 200 {array} contactctrl.Contact
// @Failure 500 {object} ErrorResponse
// @Router /businesses/{id}/contacts [get]
func (h *Handler) ListContacts(c *gin.Context) {
	businessID, ok := parseID(c, "id")
	if !ok {
		return
	}

	contacts, err := h.contacts.ListByBusiness(c.Request.Context(), businessID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, contacts)
}

// CreateContact godoc
// @Summary Attach a contact to a lead
// @Accept json
// @Param id path string true "Business ID"
// @Produce json
// @Success 201 {object} contactctrl.Contact
// @Failure 400 {object} ErrorResponse
// @Router /businesses/{id}/contacts [post]
func (h *Handler) CreateContact(c *gin.Context) {
	businessID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Name  string `json:"name" binding:"required"`
		Role  string `json:"role"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	contact, err := h.contacts.Create(c.Request.Context(), &contactctrl.Contact{
		BusinessID: businessID,
		Name:       req.Name,
		Role:       req.Role,
		Email:      req.Email,
		Phone:      req.Phone,
	})
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusCreated, contact)
}

// DeleteContact godoc
// @Summary Remove a contact
// @Param id path string true "Contact ID"
// @Success 204 "No Content"
// @Failure 500 {object} ErrorResponse
// @Router /contacts/{id} [delete]
func (h *Handler) DeleteContact(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.contacts.Delete(c.Request.Context(), id); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

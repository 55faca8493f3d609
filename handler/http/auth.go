package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"leadgrid/src/infrastructure/auth"
)

// IssueToken godoc
// @Summary Exchange an api key for a token pair
// @Accept json
// @Produce json
// @Success 200 {object} auth.TokenPair
// @Failure 401 {object} ErrorResponse
// @Router /auth/token [post]
func (h *Handler) IssueToken(c *gin.Context) {
	var req struct {
		APIKey string `json:"api_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	pair, err := h.tokens.Issue(req.APIKey)
	if err != nil {
		sendError(c, http.StatusUnauthorized, err)
		return
	}
	sendJSON(c, http.StatusOK, pair)
}

// RefreshToken godoc
// @Summary Exchange a refresh token for a fresh token pair
// @Accept json
// @Produce json
// @Success 200 {object} auth.TokenPair
// @Failure 401 {object} ErrorResponse
// @Router /auth/refresh [post]
func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	pair, err := h.tokens.Refresh(req.RefreshToken)
	if err != nil {
		sendError(c, http.StatusUnauthorized, err)
		return
	}
	sendJSON(c, http.StatusOK, pair)
}

// RequireAuth validates the bearer token on protected routes. With no api
// keys configured the API runs open, which is the local development default.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.tokens.Enabled() {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			sendError(c, http.StatusUnauthorized, errors.New("missing bearer token"))
			c.Abort()
			return
		}

		if err := h.tokens.Validate(token); err != nil {
			sendError(c, http.StatusUnauthorized, auth.ErrInvalidToken)
			c.Abort()
			return
		}

		c.Next()
	}
}

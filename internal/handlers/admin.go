package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ramallah-time/internal/listing"
)

// AdminHandler handles admin-related requests
type AdminHandler struct {
	service *listing.Service
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(service *listing.Service) *AdminHandler {
	return &AdminHandler{service: service}
}

// Verify checks the admin security code
func (h *AdminHandler) Verify(c *gin.Context) {
	if err := h.service.VerifyAdmin(credential(c)); err != nil {
		// The dashboard login treats any wrong code as 401.
		c.JSON(http.StatusUnauthorized, gin.H{"error": listing.Message(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// GetStats returns directory statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), credential(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetDeleteLogs returns recent deletions
func (h *AdminHandler) GetDeleteLogs(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 0 {
		badRequest(c, "invalid limit")
		return
	}

	logs, err := h.service.DeleteLogs(c.Request.Context(), credential(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}

// GetActivations returns the payment history of one place
func (h *AdminHandler) GetActivations(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	recs, err := h.service.ActivationHistory(c.Request.Context(), credential(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"place_id":    id,
		"activations": recs,
		"count":       len(recs),
	})
}

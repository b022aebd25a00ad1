package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetSnoozeMinutes handles GET /api/settings/snooze.
func (h *Handler) GetSnoozeMinutes(c *gin.Context) {
	minutes, err := h.store.SnoozeMinutes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"minutes": minutes})
}

type putSnoozeRequest struct {
	Minutes int `json:"minutes" binding:"required,gt=0"`
}

// PutSnoozeMinutes handles PUT /api/settings/snooze.
func (h *Handler) PutSnoozeMinutes(c *gin.Context) {
	var req putSnoozeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.SetSnoozeMinutes(c.Request.Context(), req.Minutes); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"minutes": req.Minutes})
}

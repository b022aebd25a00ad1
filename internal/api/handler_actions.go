package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// SnoozeAlarm handles POST /api/alarms/:id/snooze.
func (h *Handler) SnoozeAlarm(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alarm id"})
		return
	}

	at, err := h.actions.Snooze(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snoozed_until_ms": at.UnixMilli()})
}

// DismissAlarm handles POST /api/alarms/:id/dismiss.
func (h *Handler) DismissAlarm(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alarm id"})
		return
	}

	if err := h.actions.Dismiss(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// SwipeAlarm handles POST /api/alarms/:id/swipe: the alert was cleared
// without an explicit action.
func (h *Handler) SwipeAlarm(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alarm id"})
		return
	}

	if err := h.actions.SwipeCleared(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type stopRingingRequest struct {
	ID *int64 `json:"id"`
}

// StopRinging handles POST /api/ring/stop. The id is optional; without one,
// whatever is currently ringing stops. An empty body is accepted.
func (h *Handler) StopRinging(c *gin.Context) {
	var req stopRingingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if err := h.actions.StopRinging(c.Request.Context(), req.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

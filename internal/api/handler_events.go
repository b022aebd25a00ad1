package api

import (
	"io"

	"github.com/gin-gonic/gin"
)

// StreamEvents handles GET /api/events: an SSE stream of push/tap events for
// an attached UI. The subscription ends when the client disconnects.
func (h *Handler) StreamEvents(c *gin.Context) {
	id, ch := h.bus.Subscribe()
	defer h.bus.Unsubscribe(id)

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

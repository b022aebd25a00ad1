package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"alarm-delivery-backend/internal/action"
	"alarm-delivery-backend/internal/events"
	"alarm-delivery-backend/internal/sched"
	"alarm-delivery-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	sched   *sched.Scheduler
	actions *action.Handler
	bus     *events.Bus
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, sc *sched.Scheduler, a *action.Handler, bus *events.Bus, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:   s,
		sched:   sc,
		actions: a,
		bus:     bus,
		webpush: webpushOptions,
	}
}

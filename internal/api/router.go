package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"alarm-delivery-backend/config"
	"alarm-delivery-backend/internal/action"
	"alarm-delivery-backend/internal/events"
	"alarm-delivery-backend/internal/mw"
	"alarm-delivery-backend/internal/sched"
	"alarm-delivery-backend/internal/store"
)

// NewRouter creates and configures a new Gin router for the command surface.
func NewRouter(cfg *config.ServerConfig, s store.Store, sc *sched.Scheduler, a *action.Handler, bus *events.Bus, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, sc, a, bus, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), 5)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 10*time.Minute)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// Schedule commands
		api.POST("/alarms", handler.ScheduleExact)
		api.POST("/alarms/sunrise", handler.ScheduleSunrise)
		api.DELETE("/alarms/:id", handler.CancelAlarm)
		api.GET("/alarms", caching, handler.ListAlarms)
		api.GET("/alarms/:id/state", handler.GetAlarmState)

		// Action events from the alert surfaces
		api.POST("/alarms/:id/snooze", handler.SnoozeAlarm)
		api.POST("/alarms/:id/dismiss", handler.DismissAlarm)
		api.POST("/alarms/:id/swipe", handler.SwipeAlarm)
		api.POST("/ring/stop", handler.StopRinging)

		// Capabilities and settings
		api.GET("/capabilities", handler.GetCapabilities)
		api.GET("/settings/snooze", handler.GetSnoozeMinutes)
		api.PUT("/settings/snooze", handler.PutSnoozeMinutes)

		// UI event stream
		api.GET("/events", handler.StreamEvents)

		// Push subscription management
		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}

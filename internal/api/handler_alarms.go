package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"alarm-delivery-backend/internal/model"
	"alarm-delivery-backend/internal/sched"
)

type scheduleRequest struct {
	ID                 int64  `json:"id" binding:"required,gt=0"`
	Kind               string `json:"kind"`
	TriggerAtMs        int64  `json:"trigger_at_ms"`
	Hour               *int   `json:"hour"`
	Minute             *int   `json:"minute"`
	IsAM               *bool  `json:"is_am"`
	Label              string `json:"label"`
	SoundRef           string `json:"sound_ref"`
	ChallengeKind      int    `json:"challenge_kind"`
	SunriseLeadMinutes *int   `json:"sunrise_lead_minutes"`
}

// toAlarm validates the either/or between a one-shot instant and a recurring
// wall-clock time of day.
func (req *scheduleRequest) toAlarm() (*model.Alarm, error) {
	if req.ID > sched.MaxAlarmID {
		return nil, fmt.Errorf("id must not exceed %d", sched.MaxAlarmID)
	}
	kind := model.AlarmKind(req.Kind)
	switch kind {
	case "":
		kind = model.KindAlarm
	case model.KindAlarm, model.KindReminder:
	default:
		return nil, errors.New("kind must be \"alarm\" or \"reminder\"")
	}

	alarm := &model.Alarm{
		ID:                 req.ID,
		Kind:               kind,
		Label:              req.Label,
		SoundRef:           req.SoundRef,
		ChallengeKind:      req.ChallengeKind,
		SunriseLeadMinutes: req.SunriseLeadMinutes,
	}

	hasInstant := req.TriggerAtMs > 0
	hasTimeOfDay := req.Hour != nil || req.Minute != nil
	switch {
	case hasInstant && hasTimeOfDay:
		return nil, errors.New("provide trigger_at_ms or hour/minute, not both")
	case hasInstant:
		alarm.TriggerAtMs = req.TriggerAtMs
	case hasTimeOfDay:
		if req.Hour == nil || req.Minute == nil {
			return nil, errors.New("hour and minute are both required for a recurring alarm")
		}
		if *req.Hour < 1 || *req.Hour > 12 {
			return nil, errors.New("hour must be between 1 and 12")
		}
		if *req.Minute < 0 || *req.Minute > 59 {
			return nil, errors.New("minute must be between 0 and 59")
		}
		alarm.Hour = *req.Hour
		alarm.Minute = *req.Minute
		alarm.IsAM = req.IsAM == nil || *req.IsAM
		alarm.RepeatDaily = true
	default:
		return nil, errors.New("either trigger_at_ms or hour/minute is required")
	}

	if req.SunriseLeadMinutes != nil && *req.SunriseLeadMinutes <= 0 {
		return nil, errors.New("sunrise_lead_minutes must be positive")
	}
	if req.ChallengeKind < 0 {
		return nil, errors.New("challenge_kind must not be negative")
	}
	return alarm, nil
}

// ScheduleExact handles POST /api/alarms.
func (h *Handler) ScheduleExact(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alarm, err := req.toAlarm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	at, err := h.sched.Arm(c.Request.Context(), alarm)
	if err != nil {
		if errors.Is(err, sched.ErrPastTrigger) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"armed_at_ms": at.UnixMilli(),
		"exact":       h.sched.CanScheduleExactly(),
	})
}

type scheduleSunriseRequest struct {
	ID          int64  `json:"id" binding:"required,gt=0"`
	TriggerAtMs int64  `json:"trigger_at_ms" binding:"required,gt=0"`
	LeadMinutes int    `json:"lead_minutes" binding:"required,gt=0"`
	Label       string `json:"label"`
}

// ScheduleSunrise handles POST /api/alarms/sunrise: it arms the pre-wake
// event lead minutes before the given instant, under the derived companion
// identity.
func (h *Handler) ScheduleSunrise(c *gin.Context) {
	var req scheduleSunriseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ID > sched.MaxAlarmID {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("id must not exceed %d", sched.MaxAlarmID)})
		return
	}

	alarm := &model.Alarm{
		ID:          sched.SunriseID(req.ID),
		Kind:        model.KindSunrise,
		TriggerAtMs: req.TriggerAtMs - int64(req.LeadMinutes)*60_000,
		Label:       req.Label,
	}

	at, err := h.sched.Arm(c.Request.Context(), alarm)
	if err != nil {
		if errors.Is(err, sched.ErrPastTrigger) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"armed_at_ms": at.UnixMilli(),
		"exact":       h.sched.CanScheduleExactly(),
	})
}

// CancelAlarm handles DELETE /api/alarms/:id. Cancelling an unknown identity
// succeeds.
func (h *Handler) CancelAlarm(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alarm id"})
		return
	}

	if err := h.sched.Cancel(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// alarmResponse is the API shape of a persisted definition.
type alarmResponse struct {
	ID                 int64  `json:"id"`
	Kind               string `json:"kind"`
	TriggerAtMs        int64  `json:"trigger_at_ms,omitempty"`
	Hour               int    `json:"hour,omitempty"`
	Minute             int    `json:"minute"`
	IsAM               bool   `json:"is_am"`
	RepeatDaily        bool   `json:"repeat_daily"`
	Label              string `json:"label"`
	SoundRef           string `json:"sound_ref,omitempty"`
	ChallengeKind      int    `json:"challenge_kind"`
	SunriseLeadMinutes *int   `json:"sunrise_lead_minutes,omitempty"`
}

// ListAlarms handles GET /api/alarms.
func (h *Handler) ListAlarms(c *gin.Context) {
	alarms, err := h.store.ListAlarms(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]alarmResponse, 0, len(alarms))
	for _, a := range alarms {
		resp = append(resp, alarmResponse{
			ID:                 a.ID,
			Kind:               string(a.Kind),
			TriggerAtMs:        a.TriggerAtMs,
			Hour:               a.Hour,
			Minute:             a.Minute,
			IsAM:               a.IsAM,
			RepeatDaily:        a.RepeatDaily,
			Label:              a.Label,
			SoundRef:           a.SoundRef,
			ChallengeKind:      a.ChallengeKind,
			SunriseLeadMinutes: a.SunriseLeadMinutes,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// GetAlarmState handles GET /api/alarms/:id/state.
func (h *Handler) GetAlarmState(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alarm id"})
		return
	}
	state := h.actions.State(c.Request.Context(), id)
	c.JSON(http.StatusOK, gin.H{"id": id, "state": state})
}

// GetCapabilities handles GET /api/capabilities.
func (h *Handler) GetCapabilities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"exact_scheduling": h.sched.CanScheduleExactly()})
}

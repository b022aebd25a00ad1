package model

import "time"

// AlarmKind distinguishes what a scheduled record delivers when it fires.
type AlarmKind string

const (
	KindAlarm    AlarmKind = "alarm"
	KindReminder AlarmKind = "reminder"
	KindSunrise  AlarmKind = "sunrise"
)

// Alarm is the persisted definition of a scheduled alert. It is the single
// source of truth: armed timers, ringing sessions and pending notifications
// are all reconstructable from this record.
type Alarm struct {
	ID   int64     `gorm:"primaryKey"` // Caller-assigned identity
	Kind AlarmKind `gorm:"size:16;not null;default:alarm"`

	// One-shot alarms carry an absolute trigger instant in epoch milliseconds.
	// Recurring alarms carry a wall-clock time of day instead.
	TriggerAtMs int64 `gorm:"not null;default:0"`
	Hour        int   `gorm:"not null;default:0"` // 1..12 when recurring
	Minute      int   `gorm:"not null;default:0"`
	IsAM        bool  `gorm:"not null;default:true"`
	RepeatDaily bool  `gorm:"not null;default:false"`

	Label         string `gorm:"size:256;not null;default:''"`
	SoundRef      string `gorm:"size:256"` // Empty means the default tone
	ChallengeKind int    `gorm:"not null;default:0"`

	// When set, a companion pre-wake record is derived this many minutes
	// before the trigger instant.
	SunriseLeadMinutes *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OneShot reports whether the alarm fires once and is then done.
func (a *Alarm) OneShot() bool {
	return !a.RepeatDaily
}

// Hour24 converts the stored 12-hour clock reading to a 24-hour value.
func (a *Alarm) Hour24() int {
	h := a.Hour % 12
	if !a.IsAM {
		h += 12
	}
	return h
}

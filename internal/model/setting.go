package model

import "time"

// Setting holds a global scalar keyed by name. The snooze duration lives here
// so it survives restarts alongside the alarms it applies to.
type Setting struct {
	Name      string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"size:256;not null"`
	UpdatedAt time.Time
}

// SettingSnoozeMinutes is the key for the default snooze duration in minutes.
const SettingSnoozeMinutes = "snooze_minutes"

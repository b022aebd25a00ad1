package store

import (
	"context"
	"fmt"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alarm-delivery-backend/internal/model"
)

// Store defines the interface for all database operations. Alarm writes use
// update semantics per identity: saving an existing id replaces the previous
// definition atomically.
type Store interface {
	DB() *gorm.DB

	SaveAlarm(ctx context.Context, alarm *model.Alarm) error
	GetAlarm(ctx context.Context, id int64) (*model.Alarm, error)
	DeleteAlarm(ctx context.Context, id int64) error
	ListAlarms(ctx context.Context) ([]model.Alarm, error)

	SnoozeMinutes(ctx context.Context) (int, error)
	SetSnoozeMinutes(ctx context.Context, minutes int) error

	SaveSubscription(ctx context.Context, sub *model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db            *gorm.DB
	defaultSnooze int
}

// NewGormStore creates a new GORM-backed store. defaultSnooze is returned when
// no snooze setting has been persisted yet.
func NewGormStore(db *gorm.DB, defaultSnooze int) Store {
	if defaultSnooze <= 0 {
		defaultSnooze = 5
	}
	return &gormStore{db: db, defaultSnooze: defaultSnooze}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// SaveAlarm upserts an alarm definition keyed by identity.
func (s *gormStore) SaveAlarm(ctx context.Context, alarm *model.Alarm) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"kind", "trigger_at_ms", "hour", "minute", "is_am", "repeat_daily",
			"label", "sound_ref", "challenge_kind", "sunrise_lead_minutes", "updated_at",
		}),
	}).Create(alarm).Error
	if err != nil {
		return fmt.Errorf("failed to save alarm %d: %w", alarm.ID, err)
	}
	return nil
}

// GetAlarm fetches the definition for an identity. A missing identity yields
// gorm.ErrRecordNotFound.
func (s *gormStore) GetAlarm(ctx context.Context, id int64) (*model.Alarm, error) {
	var alarm model.Alarm
	if err := s.db.WithContext(ctx).First(&alarm, id).Error; err != nil {
		return nil, err
	}
	return &alarm, nil
}

// DeleteAlarm removes the definition for an identity. Deleting an unknown
// identity is a no-op, not an error.
func (s *gormStore) DeleteAlarm(ctx context.Context, id int64) error {
	if err := s.db.WithContext(ctx).Delete(&model.Alarm{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete alarm %d: %w", id, err)
	}
	return nil
}

func (s *gormStore) ListAlarms(ctx context.Context) ([]model.Alarm, error) {
	var alarms []model.Alarm
	if err := s.db.WithContext(ctx).Order("id").Find(&alarms).Error; err != nil {
		return nil, fmt.Errorf("failed to list alarms: %w", err)
	}
	return alarms, nil
}

// SnoozeMinutes returns the configured snooze duration, falling back to the
// seeded default when nothing has been stored.
func (s *gormStore) SnoozeMinutes(ctx context.Context) (int, error) {
	var setting model.Setting
	err := s.db.WithContext(ctx).First(&setting, "name = ?", model.SettingSnoozeMinutes).Error
	if err == gorm.ErrRecordNotFound {
		return s.defaultSnooze, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read snooze setting: %w", err)
	}
	minutes, err := strconv.Atoi(setting.Value)
	if err != nil || minutes <= 0 {
		return s.defaultSnooze, nil
	}
	return minutes, nil
}

func (s *gormStore) SetSnoozeMinutes(ctx context.Context, minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("snooze minutes must be positive, got %d", minutes)
	}
	setting := model.Setting{
		Name:  model.SettingSnoozeMinutes,
		Value: strconv.Itoa(minutes),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return fmt.Errorf("failed to store snooze setting: %w", err)
	}
	return nil
}

func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func (s *gormStore) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

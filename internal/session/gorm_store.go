package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const bitratePresetSetting = "bitrate_preset"

// positionRecord is the table row for a Position.
type positionRecord struct {
	VideoID   string `gorm:"primaryKey;size:128"`
	EventID   string `gorm:"primaryKey;size:128;index"`
	Time      float64
	Duration  float64
	UpdatedAt time.Time
}

func (positionRecord) TableName() string { return "playback_positions" }

// settingRecord is a key/value preference row.
type settingRecord struct {
	Name      string `gorm:"primaryKey;size:64"`
	Value     string
	UpdatedAt time.Time
}

func (settingRecord) TableName() string { return "playback_settings" }

// GormStore is a Store backed by a gorm database.
type GormStore struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) the sqlite database at path and
// migrates the session tables. Use ":memory:" for a throwaway store.
func OpenSQLite(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open session database %q: %w", path, err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	return NewGormStore(db)
}

// NewGormStore migrates the session tables on db and returns a store over it.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&positionRecord{}, &settingRecord{}); err != nil {
		return nil, fmt.Errorf("migrate session tables: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SavePosition implements Store.SavePosition.
func (s *GormStore) SavePosition(ctx context.Context, p Position) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	rec := positionRecord{
		VideoID:   p.VideoID,
		EventID:   p.EventID,
		Time:      p.Time,
		Duration:  p.Duration,
		UpdatedAt: p.UpdatedAt,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

// GetPosition implements Store.GetPosition.
func (s *GormStore) GetPosition(ctx context.Context, key Key) (Position, bool, error) {
	var rec positionRecord
	err := s.db.WithContext(ctx).
		Where("video_id = ? AND event_id = ?", key.VideoID, key.EventID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, err
	}
	return Position{
		Key:       Key{VideoID: rec.VideoID, EventID: rec.EventID},
		Time:      rec.Time,
		Duration:  rec.Duration,
		UpdatedAt: rec.UpdatedAt,
	}, true, nil
}

// DeletePosition implements Store.DeletePosition.
func (s *GormStore) DeletePosition(ctx context.Context, key Key) error {
	return s.db.WithContext(ctx).
		Where("video_id = ? AND event_id = ?", key.VideoID, key.EventID).
		Delete(&positionRecord{}).Error
}

// DeletePositions implements Store.DeletePositions.
func (s *GormStore) DeletePositions(ctx context.Context, keys []Key) error {
	if len(keys) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, k := range keys {
			if err := tx.Where("video_id = ? AND event_id = ?", k.VideoID, k.EventID).
				Delete(&positionRecord{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteByEventIDs implements Store.DeleteByEventIDs.
func (s *GormStore) DeleteByEventIDs(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("event_id IN ?", eventIDs).
		Delete(&positionRecord{}).Error
}

// EventIDs implements Store.EventIDs.
func (s *GormStore) EventIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&positionRecord{}).
		Distinct("event_id").
		Order("event_id").
		Pluck("event_id", &ids).Error
	if ids == nil {
		ids = []string{}
	}
	return ids, err
}

// ClearPositions implements Store.ClearPositions.
func (s *GormStore) ClearPositions(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&positionRecord{}).Error
}

// SaveBitratePreset implements Store.SaveBitratePreset.
func (s *GormStore) SaveBitratePreset(ctx context.Context, key string) error {
	rec := settingRecord{Name: bitratePresetSetting, Value: key, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

// BitratePreset implements Store.BitratePreset.
func (s *GormStore) BitratePreset(ctx context.Context) (string, error) {
	var rec settingRecord
	err := s.db.WithContext(ctx).Where("name = ?", bitratePresetSetting).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rec.Value, nil
}

// Package storage keeps the web tier's own records. Lessons and users belong
// to the API and are never stored here.
package storage

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/s/lifelessons/internal/logger"
	"github.com/s/lifelessons/internal/models"
)

// Recorder is the viewer action history.
type Recorder interface {
	Record(ctx context.Context, userID, action, lessonID string, details map[string]any)
	Recent(ctx context.Context, userID string, n int) ([]models.Activity, error)
	Last(ctx context.Context, userID, action string) (models.Activity, bool, error)
}

var (
	_ Recorder = (*Activities)(nil)
	_ Recorder = Nop{}
)

// Activities persists the history with gorm.
type Activities struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActivities(db *gorm.DB, log *logger.Logger) *Activities {
	return &Activities{db: db, log: log.With("component", "ActivityStore")}
}

// Record never fails the caller's action; errors are only logged.
func (a *Activities) Record(ctx context.Context, userID, action, lessonID string, details map[string]any) {
	if userID == "" {
		return
	}
	entry := models.Activity{UserID: userID, Action: action, LessonID: lessonID}
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			a.log.Warn("activity details not encodable", "action", action, "error", err)
		} else {
			entry.Details = datatypes.JSON(raw)
		}
	}
	if err := a.db.WithContext(ctx).Create(&entry).Error; err != nil {
		a.log.Warn("activity not recorded", "action", action, "error", err)
	}
}

// Recent returns the newest n entries of the viewer, newest first.
func (a *Activities) Recent(ctx context.Context, userID string, n int) ([]models.Activity, error) {
	var out []models.Activity
	err := a.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Limit(n).
		Find(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return out, err
}

// Last returns the newest entry of one kind, if any.
func (a *Activities) Last(ctx context.Context, userID, action string) (models.Activity, bool, error) {
	var entry models.Activity
	err := a.db.WithContext(ctx).
		Where("user_id = ? AND action = ?", userID, action).
		Order("created_at DESC").Order("id DESC").
		First(&entry).Error
	switch {
	case err == nil:
		return entry, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.Activity{}, false, nil
	default:
		return models.Activity{}, false, err
	}
}

// Nop is used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, string, string, string, map[string]any) {}

func (Nop) Recent(context.Context, string, int) ([]models.Activity, error) { return nil, nil }

func (Nop) Last(context.Context, string, string) (models.Activity, bool, error) {
	return models.Activity{}, false, nil
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

// Activity is one entry of the viewer action history kept by the web tier.
type Activity struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	UserID    string         `gorm:"index;size:64" json:"user_id"`
	Action    string         `gorm:"size:32" json:"action"` // "login", "like", "favorite", "report", ...
	LessonID  string         `gorm:"index;size:64" json:"lesson_id,omitempty"`
	Details   datatypes.JSON `json:"details"`
	CreatedAt time.Time      `json:"created_at"`
}

const (
	ActionLogin        = "login"
	ActionLike         = "like"
	ActionUnlike       = "unlike"
	ActionFavorite     = "favorite"
	ActionUnfavorite   = "unfavorite"
	ActionReport       = "report"
	ActionComment      = "comment"
	ActionLessonCreate = "lesson_create"
	ActionLessonUpdate = "lesson_update"
	ActionLessonDelete = "lesson_delete"
	ActionRoleChange   = "role_change"
	ActionFeature      = "feature"
	ActionCheckout     = "checkout"
)

package models

import (
	"time"
)

// Comment on a lesson.
type Comment struct {
	ID        string    `json:"_id"`
	LessonID  string    `json:"lessonId"`
	Text      string    `json:"text"`
	User      Author    `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReportInput is the body of POST /lessons/:id/report.
type ReportInput struct {
	Reason  ReportReason `json:"reason"`
	Message string       `json:"message,omitempty"`
}

// Report is one reporter's complaint about a lesson.
type Report struct {
	ID        string       `json:"_id"`
	LessonID  string       `json:"lessonId"`
	Reporter  Author       `json:"reporter"`
	Reason    ReportReason `json:"reason"`
	Message   string       `json:"message,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// ReportedLesson aggregates reports per lesson for the admin view.
// Lesson is nil when the lesson was deleted after being reported.
type ReportedLesson struct {
	LessonID    string  `json:"_id"`
	Lesson      *Lesson `json:"lesson,omitempty"`
	ReportCount int     `json:"reportCount"`
}

func (r ReportedLesson) Title() string {
	if r.Lesson == nil || r.Lesson.Title == "" {
		return "Deleted Lesson"
	}
	return r.Lesson.Title
}

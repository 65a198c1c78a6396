package models

import (
	"bytes"
	"encoding/json"
)

// Favorite links the viewer to a saved lesson. The API answers either with
// the bare lesson or with a wrapper carrying it in a nested "lesson" field;
// both decode into this type.
type Favorite struct {
	ID     string
	Lesson *Lesson
}

func (f *Favorite) UnmarshalJSON(data []byte) error {
	var probe struct {
		ID     string          `json:"_id"`
		Lesson json.RawMessage `json:"lesson"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	nested := bytes.TrimSpace(probe.Lesson)
	if len(nested) > 0 && nested[0] == '{' {
		var l Lesson
		if err := json.Unmarshal(nested, &l); err != nil {
			return err
		}
		*f = Favorite{ID: probe.ID, Lesson: &l}
		return nil
	}
	var l Lesson
	if err := json.Unmarshal(data, &l); err != nil {
		return err
	}
	*f = Favorite{ID: l.ID, Lesson: &l}
	return nil
}

func (f Favorite) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID     string  `json:"_id"`
		Lesson *Lesson `json:"lesson,omitempty"`
	}{ID: f.ID, Lesson: f.Lesson})
}

// LessonID is the id of the saved lesson regardless of the response shape.
func (f Favorite) LessonID() string {
	if f.Lesson != nil && f.Lesson.ID != "" {
		return f.Lesson.ID
	}
	return f.ID
}

// HasFavorite reports whether lessonID is in the list.
func HasFavorite(favs []Favorite, lessonID string) bool {
	for _, f := range favs {
		if f.LessonID() == lessonID {
			return true
		}
	}
	return false
}

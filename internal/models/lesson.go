package models

import (
	"bytes"
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

const UnknownAuthor = "Unknown Author"

// Author is the single normalized form of a lesson creator, whatever shape
// the API used for it.
type Author struct {
	ID       string `json:"_id,omitempty"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL,omitempty"`
	Email    string `json:"email,omitempty"`
}

type Lesson struct {
	ID             string
	Title          string
	Description    string
	Category       Category
	EmotionalTone  Tone
	AccessLevel    AccessLevel
	Visibility     Visibility
	Image          string
	Author         Author
	Likes          []string
	LikesCount     int
	Favorites      []string
	FavoritesCount int
	// Views is nil when the API does not track views for the lesson.
	Views      *int
	CreatedAt  time.Time
	UpdatedAt  time.Time
	IsFeatured bool
}

type lessonWire struct {
	ID             string          `json:"_id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Category       Category        `json:"category"`
	EmotionalTone  Tone            `json:"emotionalTone"`
	AccessLevel    AccessLevel     `json:"accessLevel"`
	Visibility     Visibility      `json:"visibility"`
	Image          string          `json:"image,omitempty"`
	Creator        json.RawMessage `json:"creator,omitempty"`
	CreatedBy      json.RawMessage `json:"createdBy,omitempty"`
	CreatorName    string          `json:"creatorName,omitempty"`
	CreatorPhoto   string          `json:"creatorPhoto,omitempty"`
	CreatorEmail   string          `json:"creatorEmail,omitempty"`
	AuthorEmail    string          `json:"authorEmail,omitempty"`
	Likes          []string        `json:"likes"`
	LikesCount     Count           `json:"likesCount"`
	Favorites      []string        `json:"favorites,omitempty"`
	FavoritesCount Count           `json:"favoritesCount"`
	Views          *int            `json:"views,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	IsFeatured     bool            `json:"isFeatured"`
}

func (l *Lesson) UnmarshalJSON(data []byte) error {
	var w lessonWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*l = Lesson{
		ID:             w.ID,
		Title:          w.Title,
		Description:    w.Description,
		Category:       w.Category,
		EmotionalTone:  w.EmotionalTone,
		AccessLevel:    w.AccessLevel,
		Visibility:     w.Visibility,
		Image:          w.Image,
		Author:         normalizeAuthor(w),
		Likes:          w.Likes,
		LikesCount:     int(w.LikesCount),
		Favorites:      w.Favorites,
		FavoritesCount: int(w.FavoritesCount),
		Views:          w.Views,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
		IsFeatured:     w.IsFeatured,
	}
	if l.AccessLevel == "" {
		l.AccessLevel = AccessFree
	}
	return nil
}

// MarshalJSON always writes the canonical creator object, so a lesson read
// back from the cache normalizes to the same Author.
func (l Lesson) MarshalJSON() ([]byte, error) {
	creator, err := json.Marshal(l.Author)
	if err != nil {
		return nil, err
	}
	return json.Marshal(lessonWire{
		ID:             l.ID,
		Title:          l.Title,
		Description:    l.Description,
		Category:       l.Category,
		EmotionalTone:  l.EmotionalTone,
		AccessLevel:    l.AccessLevel,
		Visibility:     l.Visibility,
		Image:          l.Image,
		Creator:        creator,
		Likes:          l.Likes,
		LikesCount:     Count(l.LikesCount),
		Favorites:      l.Favorites,
		FavoritesCount: Count(l.FavoritesCount),
		Views:          l.Views,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
		IsFeatured:     l.IsFeatured,
	})
}

// LikeCount prefers the explicit counter, then the raw relationship array.
func (l Lesson) LikeCount() int {
	if l.LikesCount > 0 {
		return l.LikesCount
	}
	return len(l.Likes)
}

func (l Lesson) FavoriteCount() int {
	if l.FavoritesCount > 0 {
		return l.FavoritesCount
	}
	return len(l.Favorites)
}

func (l Lesson) LikedBy(userID string) bool {
	return userID != "" && slices.Contains(l.Likes, userID)
}

func (l Lesson) FavoritedBy(userID string) bool {
	return userID != "" && slices.Contains(l.Favorites, userID)
}

func (l Lesson) IsPremium() bool { return l.AccessLevel == AccessPremium }

// ReadingMinutes estimates reading time at 200 words per minute.
func (l Lesson) ReadingMinutes() int {
	words := len(strings.Fields(l.Description))
	if words == 0 {
		return 1
	}
	return (words + 199) / 200
}

func normalizeAuthor(w lessonWire) Author {
	var a Author
	switch {
	case decodeAuthorObject(w.Creator, &a):
	case decodeAuthorObject(w.CreatedBy, &a):
	default:
		a = Author{
			ID:       firstID(w.Creator, w.CreatedBy),
			Name:     w.CreatorName,
			PhotoURL: w.CreatorPhoto,
			Email:    firstNonEmpty(w.CreatorEmail, w.AuthorEmail, firstEmail(w.Creator, w.CreatedBy)),
		}
	}
	if a.Name == "" {
		a.Name = firstNonEmpty(w.CreatorName, UnknownAuthor)
	}
	if a.Email == "" {
		a.Email = firstNonEmpty(w.CreatorEmail, w.AuthorEmail)
	}
	if a.PhotoURL == "" {
		a.PhotoURL = w.CreatorPhoto
	}
	return a
}

func decodeAuthorObject(raw json.RawMessage, a *Author) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return false
	}
	var obj struct {
		ID          string `json:"_id"`
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
		PhotoURL    string `json:"photoURL"`
		Email       string `json:"email"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}
	*a = Author{
		ID:       obj.ID,
		Name:     firstNonEmpty(obj.Name, obj.DisplayName),
		PhotoURL: obj.PhotoURL,
		Email:    obj.Email,
	}
	return true
}

func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// firstID returns the first plain string reference that is not an email.
func firstID(raws ...json.RawMessage) string {
	for _, raw := range raws {
		if s := rawString(raw); s != "" && !strings.Contains(s, "@") {
			return s
		}
	}
	return ""
}

func firstEmail(raws ...json.RawMessage) string {
	for _, raw := range raws {
		if s := rawString(raw); strings.Contains(s, "@") {
			return s
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Count decodes counters the API sends as numbers, numeric strings or null.
// Anything unparsable or negative reads as zero.
type Count int

func (c *Count) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*c = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	f, err := strconv.ParseFloat(string(data), 64)
	switch {
	case err != nil || math.IsNaN(f) || f < 0:
		*c = 0
	case f >= math.MaxInt:
		*c = Count(math.MaxInt)
	default:
		*c = Count(int(f))
	}
	return nil
}

// LessonInput is the body for creating or fully updating a lesson.
type LessonInput struct {
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Category      Category    `json:"category"`
	EmotionalTone Tone        `json:"emotionalTone"`
	Image         string      `json:"image,omitempty"`
	Visibility    Visibility  `json:"visibility"`
	AccessLevel   AccessLevel `json:"accessLevel"`
}

// LessonPatch is a partial update; nil fields are left untouched.
type LessonPatch struct {
	Title         *string      `json:"title,omitempty"`
	Description   *string      `json:"description,omitempty"`
	Category      *Category    `json:"category,omitempty"`
	EmotionalTone *Tone        `json:"emotionalTone,omitempty"`
	Image         *string      `json:"image,omitempty"`
	Visibility    *Visibility  `json:"visibility,omitempty"`
	AccessLevel   *AccessLevel `json:"accessLevel,omitempty"`
}

// LessonPage is the envelope of /lessons/public.
type LessonPage struct {
	Lessons []Lesson `json:"lessons"`
	Total   int      `json:"total"`
}

// LessonList decodes endpoints that answer with either a bare array or a
// {"lessons": [...]} envelope.
type LessonList []Lesson

func (ll *LessonList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*ll = nil
		return nil
	}
	if data[0] == '[' {
		var ls []Lesson
		if err := json.Unmarshal(data, &ls); err != nil {
			return err
		}
		*ll = ls
		return nil
	}
	var page LessonPage
	if err := json.Unmarshal(data, &page); err != nil {
		return err
	}
	*ll = page.Lessons
	return nil
}

// Package listing filters, sorts and paginates lesson lists in memory.
// Every function here is pure: inputs are never modified.
package listing

import (
	"slices"
	"strings"

	"github.com/s/lifelessons/internal/models"
)

const (
	DefaultPageSize = 6
	// BulkLimit is how many public lessons are fetched before processing.
	BulkLimit = 1000
)

const (
	SortNewest    = "newest"
	SortOldest    = "oldest"
	SortMostLiked = "most-liked"
	SortMostSaved = "most-saved"
)

type Query struct {
	Search   string
	Category string
	Tone     string
	AuthorID string
	Sort     string
	Page     int
	PageSize int
}

type Page struct {
	Items      []models.Lesson
	Total      int
	TotalPages int
	Page       int
	PageSize   int
}

func (p Page) HasPrev() bool { return p.Page > 1 }
func (p Page) HasNext() bool { return p.Page < p.TotalPages }

// Numbers lists 1..TotalPages for pager links.
func (p Page) Numbers() []int {
	out := make([]int, p.TotalPages)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func unset(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, "all")
}

// Match reports whether l passes every filter of q.
func Match(l models.Lesson, q Query) bool {
	if s := strings.ToLower(strings.TrimSpace(q.Search)); s != "" {
		if !strings.Contains(strings.ToLower(l.Title), s) &&
			!strings.Contains(strings.ToLower(l.Description), s) {
			return false
		}
	}
	if !unset(q.Category) && string(l.Category) != q.Category {
		return false
	}
	if !unset(q.Tone) && string(l.EmotionalTone) != q.Tone {
		return false
	}
	if q.AuthorID != "" && l.Author.ID != q.AuthorID {
		return false
	}
	return true
}

// Sort returns a sorted copy. Unknown keys keep the input order.
func Sort(lessons []models.Lesson, key string) []models.Lesson {
	out := slices.Clone(lessons)
	var cmp func(a, b models.Lesson) int
	switch key {
	case SortNewest:
		cmp = func(a, b models.Lesson) int { return b.CreatedAt.Compare(a.CreatedAt) }
	case SortOldest:
		cmp = func(a, b models.Lesson) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case SortMostLiked:
		cmp = func(a, b models.Lesson) int { return b.LikeCount() - a.LikeCount() }
	case SortMostSaved:
		cmp = func(a, b models.Lesson) int { return b.FavoriteCount() - a.FavoriteCount() }
	default:
		return out
	}
	slices.SortStableFunc(out, cmp)
	return out
}

// Process applies filter, sort and pagination in that order.
func Process(lessons []models.Lesson, q Query) Page {
	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	filtered := make([]models.Lesson, 0, len(lessons))
	for _, l := range lessons {
		if Match(l, q) {
			filtered = append(filtered, l)
		}
	}
	sorted := Sort(filtered, q.Sort)

	total := len(sorted)
	pages := total / size
	if total%size != 0 {
		pages++
	}
	res := Page{
		Items:      []models.Lesson{},
		Total:      total,
		TotalPages: pages,
		Page:       page,
		PageSize:   size,
	}
	// past the end; checked before multiplying so huge page numbers cannot wrap
	if page > pages {
		return res
	}
	start := (page - 1) * size
	end := min(start+size, total)
	res.Items = sorted[start:end]
	return res
}

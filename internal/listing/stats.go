package listing

import (
	"slices"
	"strings"
	"time"

	"github.com/s/lifelessons/internal/models"
)

type Contributor struct {
	Author  models.Author
	Lessons int
	Likes   int
}

// TopContributors ranks authors by number of lessons, then total likes,
// then name. Lessons whose author has neither email nor id are skipped.
func TopContributors(lessons []models.Lesson, n int) []Contributor {
	byKey := make(map[string]*Contributor)
	var order []string
	for _, l := range lessons {
		key := strings.ToLower(l.Author.Email)
		if key == "" {
			key = l.Author.ID
		}
		if key == "" {
			continue
		}
		c, ok := byKey[key]
		if !ok {
			c = &Contributor{Author: l.Author}
			byKey[key] = c
			order = append(order, key)
		}
		c.Lessons++
		c.Likes += l.LikeCount()
	}

	out := make([]Contributor, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	slices.SortStableFunc(out, func(a, b Contributor) int {
		if a.Lessons != b.Lessons {
			return b.Lessons - a.Lessons
		}
		if a.Likes != b.Likes {
			return b.Likes - a.Likes
		}
		return strings.Compare(a.Author.Name, b.Author.Name)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

const (
	ViewWeekly  = "weekly"
	ViewMonthly = "monthly"
)

type Bucket struct {
	Label string
	Count int
}

// Buckets counts lessons created per day over the last 7 days (weekly) or
// per month over the last 6 months (monthly), oldest first.
func Buckets(lessons []models.Lesson, now time.Time, view string) []Bucket {
	if view == ViewMonthly {
		return monthlyBuckets(lessons, now)
	}
	return weeklyBuckets(lessons, now)
}

func weeklyBuckets(lessons []models.Lesson, now time.Time) []Bucket {
	const days = 7
	out := make([]Bucket, days)
	keys := make(map[string]int, days)
	for i := 0; i < days; i++ {
		d := now.AddDate(0, 0, i-(days-1))
		out[i].Label = d.Format("Mon")
		keys[d.Format(time.DateOnly)] = i
	}
	for _, l := range lessons {
		if l.CreatedAt.IsZero() {
			continue
		}
		if i, ok := keys[l.CreatedAt.In(now.Location()).Format(time.DateOnly)]; ok {
			out[i].Count++
		}
	}
	return out
}

func monthlyBuckets(lessons []models.Lesson, now time.Time) []Bucket {
	const months = 6
	out := make([]Bucket, months)
	keys := make(map[string]int, months)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	for i := 0; i < months; i++ {
		d := first.AddDate(0, i-(months-1), 0)
		out[i].Label = d.Format("Jan")
		keys[d.Format("2006-01")] = i
	}
	for _, l := range lessons {
		if l.CreatedAt.IsZero() {
			continue
		}
		if i, ok := keys[l.CreatedAt.In(now.Location()).Format("2006-01")]; ok {
			out[i].Count++
		}
	}
	return out
}

// FilterOwn applies the dashboard table filters. "" and "all" mean unset.
func FilterOwn(lessons []models.Lesson, category, visibility, access string) []models.Lesson {
	out := make([]models.Lesson, 0, len(lessons))
	for _, l := range lessons {
		if !unset(category) && string(l.Category) != category {
			continue
		}
		if !unset(visibility) && string(l.Visibility) != visibility {
			continue
		}
		if !unset(access) && string(l.AccessLevel) != access {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Similar returns up to n lessons sharing the predicate with l, excluding l.
func Similar(lessons []models.Lesson, l models.Lesson, n int, same func(a, b models.Lesson) bool) []models.Lesson {
	var out []models.Lesson
	for _, c := range lessons {
		if c.ID == l.ID || !same(c, l) {
			continue
		}
		out = append(out, c)
		if len(out) == n {
			break
		}
	}
	return out
}

func SameCategory(a, b models.Lesson) bool { return a.Category == b.Category }
func SameTone(a, b models.Lesson) bool     { return a.EmotionalTone == b.EmotionalTone }

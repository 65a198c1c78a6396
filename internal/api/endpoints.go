package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/s/lifelessons/internal/models"
)

func (c *Client) SyncUser(ctx context.Context, in models.SyncRequest) (models.User, error) {
	var u models.User
	err := c.do(ctx, http.MethodPost, "/users/sync", nil, in, &u)
	return u, err
}

func (c *Client) Me(ctx context.Context) (models.User, error) {
	var u models.User
	err := c.get(ctx, "/users/me", nil, &u)
	return u, err
}

// PublicFilter narrows /lessons/public. Zero fields are omitted.
type PublicFilter struct {
	Category string
	Tone     string
	Sort     string
	Limit    int
}

func (f PublicFilter) values() url.Values {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Tone != "" {
		q.Set("emotionalTone", f.Tone)
	}
	if f.Sort != "" {
		q.Set("sort", f.Sort)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

func (c *Client) PublicLessons(ctx context.Context, f PublicFilter) (models.LessonPage, error) {
	var page models.LessonPage
	err := c.get(ctx, "/lessons/public", f.values(), &page)
	return page, err
}

func (c *Client) FeaturedLessons(ctx context.Context) ([]models.Lesson, error) {
	var ll models.LessonList
	err := c.get(ctx, "/lessons/featured", nil, &ll)
	return ll, err
}

func (c *Client) AuthorLessons(ctx context.Context, authorID string) ([]models.Lesson, error) {
	var ll models.LessonList
	err := c.get(ctx, "/lessons/author/"+seg(authorID), nil, &ll)
	return ll, err
}

func (c *Client) MyLessons(ctx context.Context) ([]models.Lesson, error) {
	var ll models.LessonList
	err := c.get(ctx, "/lessons/my", nil, &ll)
	return ll, err
}

func (c *Client) GetLesson(ctx context.Context, id string) (models.Lesson, error) {
	var l models.Lesson
	err := c.get(ctx, "/lessons/"+seg(id), nil, &l)
	return l, err
}

func (c *Client) CreateLesson(ctx context.Context, in models.LessonInput) error {
	return c.do(ctx, http.MethodPost, "/lessons", nil, in, nil)
}

func (c *Client) UpdateLesson(ctx context.Context, id string, patch models.LessonPatch) error {
	return c.do(ctx, http.MethodPatch, "/lessons/"+seg(id), nil, patch, nil)
}

func (c *Client) DeleteLesson(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/lessons/"+seg(id), nil, nil, nil)
}

// ToggleLike flips the caller's like on the server; the server decides the
// direction from its own state.
func (c *Client) ToggleLike(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPatch, "/lessons/"+seg(id)+"/like", nil, nil, nil)
}

// FavoriteFilter narrows the viewer's favorites list.
type FavoriteFilter struct {
	Category string
	Tone     string
}

func (c *Client) Favorites(ctx context.Context, f FavoriteFilter) ([]models.Favorite, error) {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Tone != "" {
		q.Set("emotionalTone", f.Tone)
	}
	var favs []models.Favorite
	err := c.get(ctx, "/lessons/favorites", q, &favs)
	return favs, err
}

func (c *Client) AddFavorite(ctx context.Context, lessonID string) error {
	return c.do(ctx, http.MethodPost, "/lessons/favorites/"+seg(lessonID), nil, nil, nil)
}

func (c *Client) RemoveFavorite(ctx context.Context, lessonID string) error {
	return c.do(ctx, http.MethodDelete, "/lessons/favorites/"+seg(lessonID), nil, nil, nil)
}

func (c *Client) ReportLesson(ctx context.Context, lessonID string, in models.ReportInput) error {
	return c.do(ctx, http.MethodPost, "/lessons/"+seg(lessonID)+"/report", nil, in, nil)
}

func (c *Client) Comments(ctx context.Context, lessonID string) ([]models.Comment, error) {
	var out []models.Comment
	err := c.get(ctx, "/lessons/"+seg(lessonID)+"/comments", nil, &out)
	return out, err
}

func (c *Client) AddComment(ctx context.Context, lessonID, text string) error {
	body := struct {
		Text string `json:"text"`
	}{Text: text}
	return c.do(ctx, http.MethodPost, "/lessons/"+seg(lessonID)+"/comments", nil, body, nil)
}

func (c *Client) AdminStats(ctx context.Context) (models.AdminStats, error) {
	var s models.AdminStats
	err := c.get(ctx, "/admin/stats", nil, &s)
	return s, err
}

func (c *Client) AdminUsers(ctx context.Context) ([]models.User, error) {
	var out []models.User
	err := c.get(ctx, "/admin/users", nil, &out)
	return out, err
}

func (c *Client) SetUserRole(ctx context.Context, userID string, role models.Role) error {
	body := struct {
		Role models.Role `json:"role"`
	}{Role: role}
	return c.do(ctx, http.MethodPatch, "/admin/users/"+seg(userID)+"/role", nil, body, nil)
}

func (c *Client) AdminLessons(ctx context.Context) ([]models.Lesson, error) {
	var ll models.LessonList
	err := c.get(ctx, "/admin/lessons", nil, &ll)
	return ll, err
}

func (c *Client) AdminDeleteLesson(ctx context.Context, lessonID string) error {
	return c.do(ctx, http.MethodDelete, "/admin/lessons/"+seg(lessonID), nil, nil, nil)
}

func (c *Client) SetFeatured(ctx context.Context, lessonID string, featured bool) error {
	body := struct {
		IsFeatured bool `json:"isFeatured"`
	}{IsFeatured: featured}
	return c.do(ctx, http.MethodPatch, "/admin/lessons/"+seg(lessonID)+"/feature", nil, body, nil)
}

func (c *Client) ReportedLessons(ctx context.Context) ([]models.ReportedLesson, error) {
	var out []models.ReportedLesson
	err := c.get(ctx, "/admin/reported-lessons", nil, &out)
	return out, err
}

func (c *Client) ReportDetails(ctx context.Context, lessonID string) ([]models.Report, error) {
	var out []models.Report
	err := c.get(ctx, "/admin/reported-lessons/"+seg(lessonID), nil, &out)
	return out, err
}

func (c *Client) CreateCheckoutSession(ctx context.Context) (models.CheckoutSession, error) {
	var s models.CheckoutSession
	err := c.do(ctx, http.MethodPost, "/payment/create-checkout-session", nil, struct{}{}, &s)
	return s, err
}

// VerifySession asks the API to confirm a finished checkout. The payment is
// nil when the API has not recorded it yet.
func (c *Client) VerifySession(ctx context.Context, sessionID string) (*models.Payment, error) {
	body := struct {
		SessionID string `json:"sessionId"`
	}{SessionID: sessionID}
	var out struct {
		Payment *models.Payment `json:"payment"`
	}
	err := c.do(ctx, http.MethodPost, "/payment/verify-session", nil, body, &out)
	return out.Payment, err
}

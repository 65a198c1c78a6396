package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/s/lifelessons/internal/apierr"
	"github.com/s/lifelessons/internal/logger"
	"github.com/s/lifelessons/internal/models"
)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	body   string
}

func newTestServer(t *testing.T, status int, reply string, seen *recorded) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		*seen = recorded{
			method: r.Method,
			path:   r.URL.EscapedPath(),
			query:  r.URL.RawQuery,
			auth:   r.Header.Get("Authorization"),
			body:   string(raw),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return New(logger.Nop(), srv.URL+"/api/", time.Second, nil)
}

func TestBearerTokenIsAttached(t *testing.T) {
	var seen recorded
	c := newTestServer(t, http.StatusOK, `{"_id":"u1","name":"Dee","isPremium":true}`, &seen)

	u, err := c.Me(WithBearer(context.Background(), "tok-123"))
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if seen.auth != "Bearer tok-123" || seen.path != "/api/users/me" {
		t.Fatalf("unexpected request %+v", seen)
	}
	if !u.IsPremium || u.DisplayName != "Dee" {
		t.Fatalf("unexpected user %+v", u)
	}

	_, _ = c.Me(context.Background())
	if seen.auth != "" {
		t.Fatalf("anonymous call must not send Authorization, got %q", seen.auth)
	}
}

func TestEndpointShapes(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		call   func(c *Client) error
		method string
		path   string
		query  string
		body   string
	}{
		{"like", func(c *Client) error { return c.ToggleLike(ctx, "l1") }, http.MethodPatch, "/api/lessons/l1/like", "", ""},
		{"add favorite", func(c *Client) error { return c.AddFavorite(ctx, "l1") }, http.MethodPost, "/api/lessons/favorites/l1", "", ""},
		{"remove favorite", func(c *Client) error { return c.RemoveFavorite(ctx, "l1") }, http.MethodDelete, "/api/lessons/favorites/l1", "", ""},
		{"report", func(c *Client) error {
			return c.ReportLesson(ctx, "l1", models.ReportInput{Reason: models.ReasonSpam})
		}, http.MethodPost, "/api/lessons/l1/report", "", `{"reason":"Spam"}`},
		{"comment", func(c *Client) error { return c.AddComment(ctx, "l1", "hi") }, http.MethodPost, "/api/lessons/l1/comments", "", `{"text":"hi"}`},
		{"role", func(c *Client) error { return c.SetUserRole(ctx, "u1", models.RoleAdmin) }, http.MethodPatch, "/api/admin/users/u1/role", "", `{"role":"admin"}`},
		{"feature", func(c *Client) error { return c.SetFeatured(ctx, "l1", true) }, http.MethodPatch, "/api/admin/lessons/l1/feature", "", `{"isFeatured":true}`},
		{"public filter", func(c *Client) error {
			_, err := c.PublicLessons(ctx, PublicFilter{Tone: "Gratitude", Limit: 6})
			return err
		}, http.MethodGet, "/api/lessons/public", "emotionalTone=Gratitude&limit=6", ""},
		{"patch visibility", func(c *Client) error {
			v := models.VisibilityPrivate
			return c.UpdateLesson(ctx, "l1", models.LessonPatch{Visibility: &v})
		}, http.MethodPatch, "/api/lessons/l1", "", `{"visibility":"private"}`},
		{"escaped id", func(c *Client) error { return c.DeleteLesson(ctx, "a/b") }, http.MethodDelete, "/api/lessons/a%2Fb", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen recorded
			c := newTestServer(t, http.StatusOK, `{}`, &seen)
			if err := tc.call(c); err != nil {
				t.Fatalf("call error = %v", err)
			}
			if seen.method != tc.method || seen.path != tc.path || seen.query != tc.query {
				t.Fatalf("got %s %s?%s, want %s %s?%s", seen.method, seen.path, seen.query, tc.method, tc.path, tc.query)
			}
			if tc.body != "" {
				var got, want any
				_ = json.Unmarshal([]byte(seen.body), &got)
				_ = json.Unmarshal([]byte(tc.body), &want)
				gb, _ := json.Marshal(got)
				wb, _ := json.Marshal(want)
				if string(gb) != string(wb) {
					t.Fatalf("body = %s, want %s", seen.body, tc.body)
				}
			}
		})
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		status       int
		reply        string
		unauthorized bool
		notFound     bool
		unavailable  bool
		message      string
	}{
		{http.StatusUnauthorized, `{"message":"token expired"}`, true, false, false, "token expired"},
		{http.StatusNotFound, `not json`, false, true, false, "Not Found"},
		{http.StatusBadGateway, `{"error":"upstream"}`, false, false, true, "upstream"},
	}
	for _, tc := range cases {
		var seen recorded
		c := newTestServer(t, tc.status, tc.reply, &seen)
		_, err := c.GetLesson(context.Background(), "x")
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if apierr.IsUnauthorized(err) != tc.unauthorized || apierr.IsNotFound(err) != tc.notFound || apierr.IsUnavailable(err) != tc.unavailable {
			t.Fatalf("status %d: misclassified %v", tc.status, err)
		}
		if err.Error() != tc.message {
			t.Fatalf("status %d: message %q, want %q", tc.status, err.Error(), tc.message)
		}
	}
}

func TestTimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := New(logger.Nop(), srv.URL, 50*time.Millisecond, nil)
	err := c.ToggleLike(context.Background(), "l1")
	if err == nil || !apierr.IsUnavailable(err) {
		t.Fatalf("expected unavailable error on timeout, got %v", err)
	}
}

func TestTolerantListShapes(t *testing.T) {
	var seen recorded
	c := newTestServer(t, http.StatusOK, `{"lessons":[{"_id":"a"},{"_id":"b"}]}`, &seen)
	ls, err := c.AuthorLessons(context.Background(), "u1")
	if err != nil || len(ls) != 2 {
		t.Fatalf("AuthorLessons() = %d lessons, %v", len(ls), err)
	}

	c = newTestServer(t, http.StatusOK, `[{"_id":"a"}]`, &seen)
	ls, err = c.MyLessons(context.Background())
	if err != nil || len(ls) != 1 || ls[0].ID != "a" {
		t.Fatalf("MyLessons() = %+v, %v", ls, err)
	}
}

func TestVerifySession(t *testing.T) {
	var seen recorded
	c := newTestServer(t, http.StatusOK, `{"payment":{"amount":150000,"paymentDate":"2024-05-01T00:00:00Z"}}`, &seen)
	p, err := c.VerifySession(context.Background(), "cs_1")
	if err != nil || p == nil || p.Major() != 1500 {
		t.Fatalf("VerifySession() = %+v, %v", p, err)
	}
	if seen.body != "{\"sessionId\":\"cs_1\"}\n" {
		t.Fatalf("unexpected body %q", seen.body)
	}
}

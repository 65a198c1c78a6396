package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/s/lifelessons/internal/api"
	"github.com/s/lifelessons/internal/auth"
	"github.com/s/lifelessons/internal/config"
	"github.com/s/lifelessons/internal/engagement"
	"github.com/s/lifelessons/internal/logger"
	"github.com/s/lifelessons/internal/models"
	"github.com/s/lifelessons/internal/querycache"
	"github.com/s/lifelessons/web"
)

type apiCalls struct {
	mu   sync.Mutex
	seen []string
}

func (c *apiCalls) add(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, call)
}

func (c *apiCalls) count(call string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.seen {
		if s == call {
			n++
		}
	}
	return n
}

func (c *apiCalls) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// newTestHandler wires a Handler against a fake API. routes are keyed by
// "METHOD /path"; anything else answers 404.
func newTestHandler(t *testing.T, routes map[string]http.HandlerFunc) (*Handler, *apiCalls) {
	t.Helper()
	calls := &apiCalls{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		calls.add(key)
		w.Header().Set("Content-Type", "application/json")
		if fn, ok := routes[key]; ok {
			fn(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"not found"}`)
	}))
	t.Cleanup(srv.Close)

	log := logger.Nop()
	client := api.New(log, srv.URL, time.Second, nil)
	cache := querycache.New(querycache.NewMemory(), time.Minute, log)
	sessions := auth.NewSessions(log, auth.NewCookieStore([]byte("handlers-test-session-key-0123456"), false))
	tmpl, err := NewRenderer(web.Templates())
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}

	h := NewHandler(Deps{
		Log:        log,
		API:        client,
		Cache:      cache,
		Sessions:   sessions,
		Resolver:   auth.NewResolver(log, sessions, cache, client, nil, nil),
		Engagement: engagement.NewService(log, cache, client),
		Tmpl:       tmpl,
		Config: config.Config{
			PageSize:            2,
			PaymentPollAttempts: 3,
			PaymentPollInterval: time.Second,
		},
	})
	h.sleep = func(context.Context, time.Duration) error { return nil }
	return h, calls
}

func reply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func member() auth.Viewer {
	return auth.Viewer{
		Authenticated:   true,
		SessionResolved: true,
		ProfileResolved: true,
		UserID:          "u1",
		User:            models.User{ID: "u1", DisplayName: "Dee", Role: models.RoleUser},
		Token:           "tok",
	}
}

func as(r *http.Request, v auth.Viewer) *http.Request {
	return r.WithContext(auth.WithViewer(r.Context(), v))
}

func postForm(target string, form url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

// flashes reads back what a response queued for the next page.
func flashes(t *testing.T, h *Handler, rec *httptest.ResponseRecorder) []auth.Flash {
	t.Helper()
	latest := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		latest[c.Name] = c
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range latest {
		req.AddCookie(c)
	}
	return h.Sessions.Flashes(httptest.NewRecorder(), req)
}

func hasFlash(fs []auth.Flash, kind, msg string) bool {
	for _, f := range fs {
		if f.Kind == kind && f.Message == msg {
			return true
		}
	}
	return false
}

func catalogue() string {
	names := []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo"}
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf(`{"_id":"l%d","title":%q,"description":"about %s","category":"Career","emotionalTone":"Gratitude","accessLevel":"free","visibility":"public","createdAt":"2024-01-0%dT10:00:00Z"}`,
			i+1, n, strings.ToLower(n), i+1)
	}
	return `{"lessons":[` + strings.Join(parts, ",") + `],"total":5}`
}

func TestPublicLessonsPaginates(t *testing.T) {
	h, _ := newTestHandler(t, map[string]http.HandlerFunc{
		"GET /lessons/public": reply(http.StatusOK, catalogue()),
	})

	rec := httptest.NewRecorder()
	h.HandlePublicLessons(rec, httptest.NewRequest(http.MethodGet, "/public-lessons?page=2", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{">Charlie<", ">Bravo<", "5 lessons"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q", want)
		}
	}
	for _, notWant := range []string{">Echo<", ">Alpha<"} {
		if strings.Contains(body, notWant) {
			t.Fatalf("body should not contain %q on page 2", notWant)
		}
	}
}

func TestPublicLessonsHugePageIsEmpty(t *testing.T) {
	h, _ := newTestHandler(t, map[string]http.HandlerFunc{
		"GET /lessons/public": reply(http.StatusOK, catalogue()),
	})

	rec := httptest.NewRecorder()
	h.HandlePublicLessons(rec, httptest.NewRequest(http.MethodGet, "/public-lessons?page=9223372036854775807", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	for _, title := range []string{">Alpha<", ">Echo<"} {
		if strings.Contains(rec.Body.String(), title) {
			t.Fatalf("page past the end listed %q", title)
		}
	}
}

func TestPublicLessonsSearch(t *testing.T) {
	h, calls := newTestHandler(t, map[string]http.HandlerFunc{
		"GET /lessons/public": reply(http.StatusOK, catalogue()),
	})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.HandlePublicLessons(rec, httptest.NewRequest(http.MethodGet, "/public-lessons?search=delta", nil))
		body := rec.Body.String()
		if !strings.Contains(body, ">Delta<") || strings.Contains(body, ">Charlie<") {
			t.Fatalf("search did not filter: %s", body)
		}
		if !strings.Contains(body, "1 lessons") {
			t.Fatal("expected a single match")
		}
	}
	if n := calls.count("GET /lessons/public"); n != 1 {
		t.Fatalf("catalogue fetched %d times, want 1 (cached)", n)
	}
}

func TestLessonNotFound(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/lesson/missing", nil)
	req = mux.SetURLVars(as(req, member()), map[string]string{"id": "missing"})
	rec := httptest.NewRecorder()
	h.HandleLesson(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "does not exist") {
		t.Fatal("expected the not found page")
	}
}

func TestLikeFlashes(t *testing.T) {
	cases := []struct {
		name   string
		status int
		kind   string
		msg    string
	}{
		{"success", http.StatusOK, auth.FlashSuccess, engagement.NoticeLiked},
		{"api failure", http.StatusInternalServerError, auth.FlashError, engagement.NoticeLikeFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, calls := newTestHandler(t, map[string]http.HandlerFunc{
				"PATCH /lessons/l1/like": reply(tc.status, `{}`),
			})

			req := postForm("/lesson/l1/like", url.Values{"liked": {"false"}})
			req = mux.SetURLVars(as(req, member()), map[string]string{"id": "l1"})
			rec := httptest.NewRecorder()
			h.HandleLike(rec, req)

			if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/lesson/l1" {
				t.Fatalf("got %d to %q", rec.Code, rec.Header().Get("Location"))
			}
			if calls.count("PATCH /lessons/l1/like") != 1 {
				t.Fatal("expected one like call")
			}
			if fs := flashes(t, h, rec); !hasFlash(fs, tc.kind, tc.msg) {
				t.Fatalf("flashes = %+v", fs)
			}
		})
	}
}

func TestLikeAnonymousGoesToLogin(t *testing.T) {
	h, calls := newTestHandler(t, nil)

	req := postForm("/lesson/l1/like", url.Values{})
	req = mux.SetURLVars(as(req, auth.Anonymous()), map[string]string{"id": "l1"})
	rec := httptest.NewRecorder()
	h.HandleLike(rec, req)

	if loc := rec.Header().Get("Location"); loc != "/login?from=%2Flesson%2Fl1" {
		t.Fatalf("Location = %q", loc)
	}
	if calls.total() != 0 {
		t.Fatal("anonymous like must not reach the API")
	}
}

func TestFeedbackValidationSkipsAPI(t *testing.T) {
	cases := []struct {
		name   string
		target string
		form   url.Values
		handle func(h *Handler) http.HandlerFunc
		msg    string
	}{
		{
			name:   "empty comment",
			target: "/lesson/l1/comments",
			form:   url.Values{"text": {"   "}},
			handle: func(h *Handler) http.HandlerFunc { return h.HandleComment },
			msg:    "Comment cannot be empty",
		},
		{
			name:   "report without reason",
			target: "/lesson/l1/report",
			form:   url.Values{"message": {"spam"}},
			handle: func(h *Handler) http.HandlerFunc { return h.HandleReport },
			msg:    "Please select a reason for reporting",
		},
		{
			name:   "report with unknown reason",
			target: "/lesson/l1/report",
			form:   url.Values{"reason": {"Because"}},
			handle: func(h *Handler) http.HandlerFunc { return h.HandleReport },
			msg:    "Please select a reason for reporting",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, calls := newTestHandler(t, nil)
			req := mux.SetURLVars(as(postForm(tc.target, tc.form), member()), map[string]string{"id": "l1"})
			rec := httptest.NewRecorder()
			tc.handle(h)(rec, req)

			if rec.Code != http.StatusSeeOther {
				t.Fatalf("status = %d, want 303", rec.Code)
			}
			if calls.total() != 0 {
				t.Fatalf("API was called %d times", calls.total())
			}
			if fs := flashes(t, h, rec); !hasFlash(fs, auth.FlashError, tc.msg) {
				t.Fatalf("flashes = %+v", fs)
			}
		})
	}
}

func TestCommentIsPosted(t *testing.T) {
	h, calls := newTestHandler(t, map[string]http.HandlerFunc{
		"POST /lessons/l1/comments": reply(http.StatusCreated, `{}`),
	})
	req := mux.SetURLVars(as(postForm("/lesson/l1/comments", url.Values{"text": {"Thanks"}}), member()), map[string]string{"id": "l1"})
	rec := httptest.NewRecorder()
	h.HandleComment(rec, req)

	if calls.count("POST /lessons/l1/comments") != 1 {
		t.Fatal("expected the comment to be posted")
	}
	if rec.Header().Get("Location") != "/lesson/l1#comments" {
		t.Fatalf("Location = %q", rec.Header().Get("Location"))
	}
}

func TestAddLessonValidation(t *testing.T) {
	h, calls := newTestHandler(t, nil)

	form := url.Values{
		"title":         {""},
		"description":   {"Something I learned"},
		"category":      {"Career"},
		"emotionalTone": {"Gratitude"},
		"accessLevel":   {"premium"},
	}
	rec := httptest.NewRecorder()
	h.HandleAddLesson(rec, as(postForm("/dashboard/add-lesson", form), member()))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Title is required", "Upgrade to Premium to create premium lessons", "Something I learned"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q", want)
		}
	}
	if calls.total() != 0 {
		t.Fatal("invalid form must not reach the API")
	}
}

func TestLessonFormValidate(t *testing.T) {
	f := LessonForm{Title: "t", Description: "d", Category: "Career", EmotionalTone: "Sadness", Visibility: "weird", AccessLevel: ""}
	if errs := f.validate(false); len(errs) != 0 {
		t.Fatalf("unexpected errors %v", errs)
	}
	if f.Visibility != "public" || f.AccessLevel != "free" {
		t.Fatalf("defaults not applied: %+v", f)
	}

	p := LessonForm{Title: "t", Description: "d", Category: "Career", EmotionalTone: "Sadness", AccessLevel: "premium"}
	if errs := p.validate(true); len(errs) != 0 {
		t.Fatalf("premium member should publish premium lessons: %v", errs)
	}
}

func TestSafeReturn(t *testing.T) {
	cases := map[string]string{
		"":                     "/",
		"/dashboard":           "/dashboard",
		"/lesson/1?x=2":        "/lesson/1?x=2",
		"//evil.example":       "/",
		"/\\evil.example":      "/",
		"https://evil.example": "/",
		"dashboard":            "/",
	}
	for in, want := range cases {
		if got := safeReturn(in); got != want {
			t.Errorf("safeReturn(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPaymentSuccessWaitsForPremium(t *testing.T) {
	var mu sync.Mutex
	polls := 0
	h, calls := newTestHandler(t, map[string]http.HandlerFunc{
		"POST /payment/verify-session": reply(http.StatusOK, `{"payment":{"amount":150000,"currency":"bdt","paymentDate":"2024-05-01T09:00:00Z"}}`),
		"GET /users/me": func(w http.ResponseWriter, _ *http.Request) {
			mu.Lock()
			polls++
			premium := polls >= 2
			mu.Unlock()
			_, _ = fmt.Fprintf(w, `{"_id":"u1","name":"Dee","isPremium":%t}`, premium)
		},
	})

	rec := httptest.NewRecorder()
	h.HandlePaymentSuccess(rec, as(httptest.NewRequest(http.MethodGet, "/payment/success?session_id=cs_1", nil), member()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Your account is now Premium.") {
		t.Fatalf("premium not confirmed: %s", body)
	}
	if !strings.Contains(body, "1500.00 BDT") {
		t.Fatal("expected the paid amount")
	}
	if calls.count("POST /payment/verify-session") != 1 {
		t.Fatal("expected one verification")
	}
	if n := calls.count("GET /users/me"); n < 2 {
		t.Fatalf("profile polled %d times", n)
	}
}

func TestPaymentWaitIsBounded(t *testing.T) {
	h, calls := newTestHandler(t, map[string]http.HandlerFunc{
		"POST /payment/verify-session": reply(http.StatusOK, `{"payment":{"amount":150000,"currency":"bdt"}}`),
		"GET /users/me": func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(300 * time.Millisecond)
			_, _ = io.WriteString(w, `{"_id":"u1","name":"Dee","isPremium":false}`)
		},
	})
	h.Config.PaymentPollAttempts = 50
	h.Config.PaymentPollInterval = 10 * time.Millisecond

	start := time.Now()
	rec := httptest.NewRecorder()
	h.HandlePaymentSuccess(rec, as(httptest.NewRequest(http.MethodGet, "/payment/success?session_id=cs_1", nil), member()))
	elapsed := time.Since(start)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "Your account is now Premium.") {
		t.Fatal("premium confirmed without the flag")
	}
	if elapsed > 3*time.Second {
		t.Fatalf("payment page took %s, want it cut at the payment wait", elapsed)
	}
	if n := calls.count("GET /users/me"); n > 3 {
		t.Fatalf("profile polled %d times within a 500ms wait", n)
	}
}

func TestPaymentSuccessWithoutSession(t *testing.T) {
	h, calls := newTestHandler(t, nil)

	rec := httptest.NewRecorder()
	h.HandlePaymentSuccess(rec, as(httptest.NewRequest(http.MethodGet, "/payment/success", nil), member()))

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/pricing" {
		t.Fatalf("got %d to %q", rec.Code, rec.Header().Get("Location"))
	}
	if calls.total() != 0 {
		t.Fatal("no session means no verification")
	}
}

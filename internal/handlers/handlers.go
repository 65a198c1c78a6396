package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/s/lifelessons/internal/api"
	"github.com/s/lifelessons/internal/apierr"
	"github.com/s/lifelessons/internal/auth"
	"github.com/s/lifelessons/internal/config"
	"github.com/s/lifelessons/internal/engagement"
	"github.com/s/lifelessons/internal/guard"
	"github.com/s/lifelessons/internal/listing"
	"github.com/s/lifelessons/internal/logger"
	"github.com/s/lifelessons/internal/models"
	"github.com/s/lifelessons/internal/querycache"
	"github.com/s/lifelessons/internal/storage"
	"github.com/s/lifelessons/internal/upload"
)

// Deps is everything the page handlers talk to. Provider and Passwords are
// nil when that kind of login is not configured.
type Deps struct {
	Log        *logger.Logger
	API        *api.Client
	Cache      *querycache.Cache
	Sessions   *auth.Sessions
	Resolver   *auth.Resolver
	Provider   auth.Provider
	Passwords  auth.PasswordProvider
	Engagement *engagement.Service
	Uploader   upload.Uploader
	Activity   storage.Recorder
	Tmpl       *Renderer
	Config     config.Config
}

type Handler struct {
	Deps
	log   *logger.Logger
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewHandler(d Deps) *Handler {
	if d.Activity == nil {
		d.Activity = storage.Nop{}
	}
	return &Handler{
		Deps:  d,
		log:   d.Log.With("component", "Pages"),
		now:   time.Now,
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PageLink is one pager entry.
type PageLink struct {
	Number  int
	URL     string
	Current bool
}

// DashboardStats are the counters on the dashboard home.
type DashboardStats struct {
	Lessons       int
	PublicLessons int
	Favorites     int
	Likes         int
}

// LessonForm is the add/update lesson form as submitted.
type LessonForm struct {
	ID            string
	Title         string
	Description   string
	Category      string
	EmotionalTone string
	Image         string
	Visibility    string
	AccessLevel   string
}

type PageData struct {
	Title        string
	Viewer       auth.Viewer
	CurrentPath  string
	Flashes      []auth.Flash
	OAuthEnabled bool
	PasswordAuth bool
	Query        url.Values
	Year         int

	Categories    []models.Category
	Tones         []models.Tone
	ReportReasons []models.ReportReason

	Lessons      []models.Lesson
	Featured     []models.Lesson
	MostSaved    []models.Lesson
	Contributors []listing.Contributor
	Page         listing.Page
	Pager        []PageLink
	PrevURL      string
	NextURL      string
	Unavailable  bool

	Lesson       models.Lesson
	Liked        bool
	Favorited    bool
	Locked       bool
	IsOwner      bool
	SameCategory []models.Lesson
	SameTone     []models.Lesson
	Comments     []models.Comment
	Author       models.Author

	Profile   models.User
	Stats     DashboardStats
	Buckets   []listing.Bucket
	ChartView string
	ChartMax  int
	Activity  []models.Activity
	Favorites []models.Favorite
	Form      LessonForm
	Errors    map[string]string

	Payment   *models.Payment
	Confirmed bool

	AdminStats models.AdminStats
	Users      []models.User
	Reported   []models.ReportedLesson
	Reports    []models.Report

	From     string
	Register bool
	Account  AccountForm
	Message  string
}

// Base fills the fields every page shares and drains pending flashes, so
// it must run before anything is written to w.
func (h *Handler) Base(w http.ResponseWriter, r *http.Request, title string) PageData {
	return PageData{
		Title:         title,
		Viewer:        auth.FromContext(r.Context()),
		CurrentPath:   r.URL.Path,
		Flashes:       h.Sessions.Flashes(w, r),
		OAuthEnabled:  h.Provider != nil,
		PasswordAuth:  h.Passwords != nil,
		Query:         r.URL.Query(),
		Year:          h.now().Year(),
		Categories:    models.Categories,
		Tones:         models.Tones,
		ReportReasons: models.ReportReasons,
	}
}

func (h *Handler) Render(w http.ResponseWriter, status int, page string, data PageData) {
	if err := h.Tmpl.Render(w, status, page, data); err != nil {
		h.log.Error("render failed", "page", page, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// Redirect queues a notification for the next page and sends the viewer to
// target.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request, target, kind, message string) {
	if message != "" {
		h.Sessions.AddFlash(w, r, kind, message)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	data := h.Base(w, r, "Page not found")
	h.Render(w, http.StatusNotFound, "not_found", data)
}

// ServerError renders the error page; unreachable services answer 503.
func (h *Handler) ServerError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "Something went wrong. Please try again."
	if apierr.IsUnavailable(err) {
		status = http.StatusServiceUnavailable
		msg = "The service is temporarily unavailable. Please try again shortly."
	}
	h.log.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	data := h.Base(w, r, "Error")
	data.Message = msg
	h.Render(w, status, "error", data)
}

// Fail maps a failed read to the page the viewer should see.
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case apierr.IsNotFound(err):
		h.NotFound(w, r)
	case apierr.IsUnauthorized(err):
		h.Redirect(w, r, guard.LoginURL(r.URL.RequestURI()), auth.FlashError, "Please log in again")
	case apierr.IsForbidden(err):
		h.Redirect(w, r, "/", auth.FlashError, "You do not have permission to view that page")
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		h.ServerError(w, r, err)
	}
}

// HandlePending is the page guards show while the viewer is not resolved
// yet. The Refresh header set by the guard makes the browser retry.
func (h *Handler) HandlePending(w http.ResponseWriter, r *http.Request) {
	data := h.Base(w, r, "Loading")
	h.Render(w, http.StatusOK, "loading", data)
}

func (h *Handler) record(ctx context.Context, v auth.Viewer, action, lessonID string, details map[string]any) {
	h.Activity.Record(ctx, v.ID(), action, lessonID, details)
}

// forgetViewer drops the viewer's cached queries after a write that can
// touch several of them.
func (h *Handler) forgetViewer(ctx context.Context, v auth.Viewer) {
	if err := h.Cache.Invalidate(ctx, querycache.Scope(v.ID())); err != nil {
		h.log.Warn("cache invalidation failed", "error", err)
	}
}

// safeReturn keeps post-login redirects on this site.
func safeReturn(from string) string {
	if from == "" || !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.HasPrefix(from, "/\\") {
		return "/"
	}
	if u, err := url.Parse(from); err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	return from
}

func formBool(r *http.Request, key string) bool {
	return r.FormValue(key) == "true"
}

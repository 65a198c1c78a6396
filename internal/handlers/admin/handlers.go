// Package admin serves the admin dashboard. Every route here sits behind
// the admin guard.
package admin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/s/lifelessons/internal/auth"
	"github.com/s/lifelessons/internal/handlers"
	"github.com/s/lifelessons/internal/listing"
	"github.com/s/lifelessons/internal/logger"
	"github.com/s/lifelessons/internal/models"
	"github.com/s/lifelessons/internal/querycache"
)

var timeNow = time.Now

type Service struct {
	*handlers.Handler
	log *logger.Logger
}

func NewService(h *handlers.Handler) *Service {
	return &Service{Handler: h, log: h.Log.With("component", "AdminPages")}
}

func (s *Service) stats(ctx context.Context, v auth.Viewer) (models.AdminStats, error) {
	return querycache.Fetch(ctx, s.Cache, querycache.AdminKey(v.ID(), "stats"), s.API.AdminStats)
}

func (s *Service) users(ctx context.Context, v auth.Viewer) ([]models.User, error) {
	return querycache.Fetch(ctx, s.Cache, querycache.AdminKey(v.ID(), "users"), s.API.AdminUsers)
}

func (s *Service) lessons(ctx context.Context, v auth.Viewer) ([]models.Lesson, error) {
	return querycache.Fetch(ctx, s.Cache, querycache.AdminKey(v.ID(), "lessons"), s.API.AdminLessons)
}

func (s *Service) reported(ctx context.Context, v auth.Viewer) ([]models.ReportedLesson, error) {
	return querycache.Fetch(ctx, s.Cache, querycache.AdminKey(v.ID(), "reported"), s.API.ReportedLessons)
}

func (s *Service) HandleAdminPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v := auth.FromContext(ctx)

	var stats models.AdminStats
	var lessons []models.Lesson
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = s.stats(gctx, v)
		return err
	})
	g.Go(func() error {
		var err error
		lessons, err = s.lessons(gctx, v)
		return err
	})
	if err := g.Wait(); err != nil {
		s.Fail(w, r, err)
		return
	}

	data := s.Base(w, r, "Admin Dashboard")
	data.AdminStats = stats
	data.Contributors = listing.TopContributors(lessons, 5)
	data.ChartView = listing.ViewMonthly
	data.Buckets = listing.Buckets(lessons, timeNow(), listing.ViewMonthly)
	for _, b := range data.Buckets {
		data.ChartMax = max(data.ChartMax, b.Count)
	}
	s.Render(w, http.StatusOK, "admin_home", data)
}

// filterUsers applies the manage users filters: search on name or email,
// role and plan, where "" and "all" mean unset.
func filterUsers(users []models.User, search, role, plan string) []models.User {
	search = strings.ToLower(strings.TrimSpace(search))
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if search != "" &&
			!strings.Contains(strings.ToLower(u.DisplayName), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		if role != "" && role != "all" && string(u.Role) != role {
			continue
		}
		switch plan {
		case "premium":
			if !u.IsPremium {
				continue
			}
		case "free":
			if u.IsPremium {
				continue
			}
		}
		out = append(out, u)
	}
	return out
}

func (s *Service) HandleUsersPage(w http.ResponseWriter, r *http.Request) {
	v := auth.FromContext(r.Context())
	users, err := s.users(r.Context(), v)
	if err != nil {
		s.Fail(w, r, err)
		return
	}
	q := r.URL.Query()
	data := s.Base(w, r, "Manage Users")
	data.Users = filterUsers(users, q.Get("search"), q.Get("role"), q.Get("plan"))
	s.Render(w, http.StatusOK, "admin_users", data)
}

// filterLessons applies the manage lessons filters: search on title or
// creator name, category and access level.
func filterLessons(lessons []models.Lesson, search, category, access string) []models.Lesson {
	search = strings.ToLower(strings.TrimSpace(search))
	var kept []models.Lesson
	for _, l := range lessons {
		if search != "" &&
			!strings.Contains(strings.ToLower(l.Title), search) &&
			!strings.Contains(strings.ToLower(l.Author.Name), search) {
			continue
		}
		kept = append(kept, l)
	}
	return listing.FilterOwn(kept, category, "", access)
}

func (s *Service) HandleLessonsPage(w http.ResponseWriter, r *http.Request) {
	v := auth.FromContext(r.Context())
	lessons, err := s.lessons(r.Context(), v)
	if err != nil {
		s.Fail(w, r, err)
		return
	}
	q := r.URL.Query()
	data := s.Base(w, r, "Manage Lessons")
	data.Lessons = listing.Sort(filterLessons(lessons, q.Get("search"), q.Get("category"), q.Get("access")), listing.SortNewest)
	data.Stats.Lessons = len(lessons)
	s.Render(w, http.StatusOK, "admin_lessons", data)
}

func (s *Service) HandleReportPage(w http.ResponseWriter, r *http.Request) {
	v := auth.FromContext(r.Context())
	reported, err := s.reported(r.Context(), v)
	if err != nil {
		s.Fail(w, r, err)
		return
	}
	data := s.Base(w, r, "Reported Lessons")
	data.Reported = reported
	s.Render(w, http.StatusOK, "admin_reports", data)
}

func (s *Service) HandleReportDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]
	v := auth.FromContext(ctx)

	reports, err := querycache.Fetch(ctx, s.Cache, querycache.AdminKey(v.ID(), "reports", id), func(ctx context.Context) ([]models.Report, error) {
		return s.API.ReportDetails(ctx, id)
	})
	if err != nil {
		s.Fail(w, r, err)
		return
	}
	data := s.Base(w, r, "Reports")
	data.Reports = reports
	data.Lesson = models.Lesson{ID: id, Title: "Deleted Lesson"}
	if reported, err := s.reported(ctx, v); err == nil {
		for _, rl := range reported {
			if rl.LessonID == id {
				data.Lesson.Title = rl.Title()
				break
			}
		}
	}
	for i := range data.Reports {
		if data.Reports[i].Reporter.Name == "" || data.Reports[i].Reporter.Name == models.UnknownAuthor {
			data.Reports[i].Reporter.Name = "Anonymous"
		}
	}
	s.Render(w, http.StatusOK, "admin_report_details", data)
}

func (s *Service) HandleProfilePage(w http.ResponseWriter, r *http.Request) {
	v := auth.FromContext(r.Context())
	data := s.Base(w, r, "Admin Profile")
	data.Profile = v.User
	stats, err := s.stats(r.Context(), v)
	if err != nil {
		s.log.Warn("admin stats unavailable", "error", err)
		data.Unavailable = true
	}
	data.AdminStats = stats
	s.Render(w, http.StatusOK, "admin_profile", data)
}

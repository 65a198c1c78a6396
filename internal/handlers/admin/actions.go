package admin

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/s/lifelessons/internal/auth"
	"github.com/s/lifelessons/internal/models"
	"github.com/s/lifelessons/internal/querycache"
)

// settle drops every cached admin query of the viewer and the lesson lists
// the change can show up in.
func (s *Service) settle(ctx context.Context, v auth.Viewer) {
	for _, k := range []querycache.Key{querycache.AdminPrefix(v.ID()), querycache.PublicLessonsKey(v.ID()), querycache.FeaturedKey(v.ID())} {
		if err := s.Cache.Invalidate(ctx, k); err != nil {
			s.log.Warn("cache invalidation failed", "key", k.String(), "error", err)
		}
	}
}

func (s *Service) HandleSetRole(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	v := auth.FromContext(r.Context())
	const page = "/dashboard/admin/manage-users"

	role := models.Role(r.FormValue("role"))
	if role != models.RoleAdmin && role != models.RoleUser {
		s.Redirect(w, r, page, auth.FlashError, "Unknown role")
		return
	}
	if id == v.ID() {
		s.Redirect(w, r, page, auth.FlashError, "You cannot change your own role")
		return
	}
	if err := s.API.SetUserRole(r.Context(), id, role); err != nil {
		s.log.Warn("role change failed", "user_id", id, "error", err)
		s.Redirect(w, r, page, auth.FlashError, "Failed to update role")
		return
	}
	s.settle(r.Context(), v)
	s.Activity.Record(r.Context(), v.ID(), models.ActionRoleChange, "", map[string]any{"user": id, "role": string(role)})
	s.Redirect(w, r, page, auth.FlashSuccess, "Role updated")
}

func (s *Service) deleteLesson(w http.ResponseWriter, r *http.Request, page string) {
	id := mux.Vars(r)["id"]
	v := auth.FromContext(r.Context())
	if err := s.API.AdminDeleteLesson(r.Context(), id); err != nil {
		s.log.Warn("admin delete failed", "lesson_id", id, "error", err)
		s.Redirect(w, r, page, auth.FlashError, "Failed to delete lesson")
		return
	}
	s.settle(r.Context(), v)
	s.Activity.Record(r.Context(), v.ID(), models.ActionLessonDelete, id, map[string]any{"admin": true})
	s.Redirect(w, r, page, auth.FlashSuccess, "Lesson deleted")
}

func (s *Service) HandleDeleteLesson(w http.ResponseWriter, r *http.Request) {
	s.deleteLesson(w, r, "/dashboard/admin/manage-lessons")
}

func (s *Service) HandleDeleteReported(w http.ResponseWriter, r *http.Request) {
	s.deleteLesson(w, r, "/dashboard/admin/reported-lessons")
}

func (s *Service) HandleFeature(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	v := auth.FromContext(r.Context())
	const page = "/dashboard/admin/manage-lessons"

	featured := r.FormValue("featured") == "true"
	if err := s.API.SetFeatured(r.Context(), id, featured); err != nil {
		s.log.Warn("feature toggle failed", "lesson_id", id, "error", err)
		s.Redirect(w, r, page, auth.FlashError, "Failed to update featured status")
		return
	}
	s.settle(r.Context(), v)
	s.Activity.Record(r.Context(), v.ID(), models.ActionFeature, id, map[string]any{"featured": featured})
	msg := "Lesson removed from featured"
	if featured {
		msg = "Lesson featured"
	}
	s.Redirect(w, r, page, auth.FlashSuccess, msg)
}

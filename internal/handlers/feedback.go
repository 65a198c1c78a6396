package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/s/lifelessons/internal/auth"
	"github.com/s/lifelessons/internal/engagement"
	"github.com/s/lifelessons/internal/guard"
	"github.com/s/lifelessons/internal/models"
	"github.com/s/lifelessons/internal/querycache"
)

const maxCommentLength = 1000

func lessonPath(id string) string { return "/lesson/" + id }

// back is where an action returns to: the form's "next" field when it is a
// local path, else the lesson page.
func back(r *http.Request, lessonID string) string {
	if next := r.FormValue("next"); next != "" {
		if s := safeReturn(next); s != "/" {
			return s
		}
	}
	return lessonPath(lessonID)
}

func (h *Handler) toggleDone(w http.ResponseWriter, r *http.Request, lessonID string, res engagement.Result, err error) {
	target := back(r, lessonID)
	switch {
	case errors.Is(err, engagement.ErrLoginRequired):
		h.Redirect(w, r, guard.LoginURL(lessonPath(lessonID)), auth.FlashInfo, res.Notice)
	case err != nil:
		h.Redirect(w, r, target, auth.FlashError, res.Notice)
	default:
		h.Redirect(w, r, target, auth.FlashSuccess, res.Notice)
	}
}

// HandleLike toggles the viewer's like. The form carries the state the
// viewer saw when clicking.
func (h *Handler) HandleLike(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	v := auth.FromContext(r.Context())
	res, err := h.Engagement.ToggleLike(r.Context(), v.ID(), id, formBool(r, "liked"))
	if err == nil {
		action := models.ActionUnlike
		if res.Active {
			action = models.ActionLike
		}
		h.record(r.Context(), v, action, id, nil)
	}
	h.toggleDone(w, r, id, res, err)
}

func (h *Handler) HandleFavorite(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	v := auth.FromContext(r.Context())
	res, err := h.Engagement.ToggleFavorite(r.Context(), v.ID(), id, formBool(r, "favorited"))
	if err == nil {
		action := models.ActionUnfavorite
		if res.Active {
			action = models.ActionFavorite
		}
		h.record(r.Context(), v, action, id, nil)
	}
	h.toggleDone(w, r, id, res, err)
}

func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	v := auth.FromContext(r.Context())

	reason := r.FormValue("reason")
	if !models.ValidReportReason(reason) {
		h.Redirect(w, r, lessonPath(id), auth.FlashError, "Please select a reason for reporting")
		return
	}
	in := models.ReportInput{
		Reason:  models.ReportReason(reason),
		Message: strings.TrimSpace(r.FormValue("message")),
	}
	if err := h.API.ReportLesson(r.Context(), id, in); err != nil {
		h.log.Warn("report failed", "lesson_id", id, "error", err)
		h.Redirect(w, r, lessonPath(id), auth.FlashError, "Failed to report lesson")
		return
	}
	h.record(r.Context(), v, models.ActionReport, id, map[string]any{"reason": reason})
	h.Redirect(w, r, lessonPath(id), auth.FlashSuccess, "Lesson reported. Thank you for your feedback.")
}

func (h *Handler) HandleComment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	v := auth.FromContext(r.Context())

	text := strings.TrimSpace(r.FormValue("text"))
	if text == "" {
		h.Redirect(w, r, lessonPath(id)+"#comments", auth.FlashError, "Comment cannot be empty")
		return
	}
	if len([]rune(text)) > maxCommentLength {
		h.Redirect(w, r, lessonPath(id)+"#comments", auth.FlashError, "Comment is too long")
		return
	}
	if err := h.API.AddComment(r.Context(), id, text); err != nil {
		h.log.Warn("comment failed", "lesson_id", id, "error", err)
		h.Redirect(w, r, lessonPath(id)+"#comments", auth.FlashError, "Failed to add comment")
		return
	}
	if err := h.Cache.Invalidate(r.Context(), querycache.CommentsKey(v.ID(), id)); err != nil {
		h.log.Warn("cache invalidation failed", "error", err)
	}
	h.record(r.Context(), v, models.ActionComment, id, nil)
	h.Redirect(w, r, lessonPath(id)+"#comments", auth.FlashSuccess, "Comment added")
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/s/lifelessons/internal/api"
	"github.com/s/lifelessons/internal/auth"
	"github.com/s/lifelessons/internal/listing"
	"github.com/s/lifelessons/internal/models"
	"github.com/s/lifelessons/internal/querycache"
	"github.com/s/lifelessons/internal/upload"
)

const (
	recentLessons  = 5
	recentActivity = 10
)

func (h *Handler) myLessons(ctx context.Context, v auth.Viewer) ([]models.Lesson, error) {
	return querycache.Fetch(ctx, h.Cache, querycache.MyLessonsKey(v.ID()), h.API.MyLessons)
}

func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v := auth.FromContext(ctx)

	var mine []models.Lesson
	var favs []models.Favorite
	var g errgroup.Group
	g.Go(func() error {
		var err error
		mine, err = h.myLessons(ctx, v)
		return err
	})
	g.Go(func() error {
		var err error
		favs, err = h.favorites(ctx, v)
		if err != nil {
			h.log.Warn("favorites unavailable", "error", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		h.Fail(w, r, err)
		return
	}

	data := h.Base(w, r, "Dashboard")
	data.Profile = v.User
	data.Stats = DashboardStats{Lessons: len(mine), Favorites: len(favs)}
	for _, l := range mine {
		if l.Visibility == models.VisibilityPublic {
			data.Stats.PublicLessons++
		}
		data.Stats.Likes += l.LikeCount()
	}

	data.ChartView = listing.ViewWeekly
	if r.URL.Query().Get("view") == listing.ViewMonthly {
		data.ChartView = listing.ViewMonthly
	}
	data.Buckets = listing.Buckets(mine, h.now(), data.ChartView)
	for _, b := range data.Buckets {
		data.ChartMax = max(data.ChartMax, b.Count)
	}
	data.Lessons = firstN(listing.Sort(mine, listing.SortNewest), recentLessons)

	activity, err := h.Activity.Recent(ctx, v.ID(), recentActivity)
	if err != nil {
		h.log.Warn("activity unavailable", "error", err)
	}
	data.Activity = activity
	h.Render(w, http.StatusOK, "dashboard", data)
}

func parseLessonForm(r *http.Request) LessonForm {
	return LessonForm{
		Title:         strings.TrimSpace(r.FormValue("title")),
		Description:   strings.TrimSpace(r.FormValue("description")),
		Category:      r.FormValue("category"),
		EmotionalTone: r.FormValue("emotionalTone"),
		Image:         strings.TrimSpace(r.FormValue("imageUrl")),
		Visibility:    r.FormValue("visibility"),
		AccessLevel:   r.FormValue("accessLevel"),
	}
}

// validate returns the problems per field; an empty map means the form can
// be sent. Free members can only publish free lessons.
func (f *LessonForm) validate(premium bool) map[string]string {
	errs := map[string]string{}
	if f.Title == "" {
		errs["title"] = "Title is required"
	}
	if f.Description == "" {
		errs["description"] = "Description is required"
	}
	if !models.ValidCategory(f.Category) {
		errs["category"] = "Please select a category"
	}
	if !models.ValidTone(f.EmotionalTone) {
		errs["emotionalTone"] = "Please select an emotional tone"
	}
	if f.Visibility != string(models.VisibilityPrivate) {
		f.Visibility = string(models.VisibilityPublic)
	}
	switch {
	case f.AccessLevel == string(models.AccessPremium) && !premium:
		errs["accessLevel"] = "Upgrade to Premium to create premium lessons"
	case f.AccessLevel != string(models.AccessPremium):
		f.AccessLevel = string(models.AccessFree)
	}
	return errs
}

func (f LessonForm) input() models.LessonInput {
	return models.LessonInput{
		Title:         f.Title,
		Description:   f.Description,
		Category:      models.Category(f.Category),
		EmotionalTone: models.Tone(f.EmotionalTone),
		Image:         f.Image,
		Visibility:    models.Visibility(f.Visibility),
		AccessLevel:   models.AccessLevel(f.AccessLevel),
	}
}

func formFromLesson(l models.Lesson) LessonForm {
	return LessonForm{
		ID:            l.ID,
		Title:         l.Title,
		Description:   l.Description,
		Category:      string(l.Category),
		EmotionalTone: string(l.EmotionalTone),
		Image:         l.Image,
		Visibility:    string(l.Visibility),
		AccessLevel:   string(l.AccessLevel),
	}
}

func parseUpload(r *http.Request) error {
	err := r.ParseMultipartForm(upload.MaxImageBytes + 1<<20)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return err
	}
	return nil
}

// uploadImage stores the file of field, if one was sent. ok is false when
// nothing was uploaded.
func (h *Handler) uploadImage(r *http.Request, field string) (url string, ok bool, err error) {
	if r.MultipartForm == nil || h.Uploader == nil {
		return "", false, nil
	}
	file, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	defer file.Close()
	if hdr.Size == 0 {
		return "", false, nil
	}
	if hdr.Size > upload.MaxImageBytes {
		return "", false, upload.ErrUploadFailed
	}
	contentType := hdr.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return "", false, upload.ErrUploadFailed
	}
	url, err = h.Uploader.Upload(r.Context(), hdr.Filename, contentType, file, hdr.Size)
	return url, err == nil, err
}

func (h *Handler) HandleAddLessonPage(w http.ResponseWriter, r *http.Request) {
	data := h.Base(w, r, "Add Lesson")
	data.Form = LessonForm{Visibility: string(models.VisibilityPublic), AccessLevel: string(models.AccessFree)}
	h.Render(w, http.StatusOK, "lesson_form", data)
}

func (h *Handler) HandleAddLesson(w http.ResponseWriter, r *http.Request) {
	v := auth.FromContext(r.Context())
	if err := parseUpload(r); err != nil {
		h.Redirect(w, r, "/dashboard/add-lesson", auth.FlashError, "Could not read the form")
		return
	}
	form := parseLessonForm(r)
	if errs := form.validate(v.IsPremium()); len(errs) > 0 {
		data := h.Base(w, r, "Add Lesson")
		data.Form, data.Errors = form, errs
		h.Render(w, http.StatusUnprocessableEntity, "lesson_form", data)
		return
	}

	if url, ok, err := h.uploadImage(r, "image"); err != nil {
		h.log.Warn("image upload failed", "error", err)
		h.Sessions.AddFlash(w, r, auth.FlashError, "Image upload failed")
	} else if ok {
		form.Image = url
	}

	if err := h.API.CreateLesson(r.Context(), form.input()); err != nil {
		h.log.Warn("create lesson failed", "error", err)
		data := h.Base(w, r, "Add Lesson")
		data.Form = form
		data.Errors = map[string]string{"form": "Failed to create lesson. Please try again."}
		h.Render(w, http.StatusBadGateway, "lesson_form", data)
		return
	}
	h.forgetViewer(r.Context(), v)
	h.record(r.Context(), v, models.ActionLessonCreate, "", map[string]any{"title": form.Title})
	h.Redirect(w, r, "/dashboard/my-lessons", auth.FlashSuccess, "Lesson created successfully")
}

// ownLesson loads a lesson the viewer may edit. It writes the response and
// returns false when the viewer may not.
func (h *Handler) ownLesson(w http.ResponseWriter, r *http.Request, id string) (models.Lesson, bool) {
	v := auth.FromContext(r.Context())
	l, err := h.lesson(r.Context(), v, id)
	if err != nil {
		h.Fail(w, r, err)
		return l, false
	}
	if !isOwner(v, l) && !v.IsAdmin() {
		h.Redirect(w, r, "/dashboard/my-lessons", auth.FlashError, "You can only edit your own lessons")
		return l, false
	}
	return l, true
}

func (h *Handler) HandleUpdateLessonPage(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ownLesson(w, r, mux.Vars(r)["id"])
	if !ok {
		return
	}
	data := h.Base(w, r, "Update Lesson")
	data.Form = formFromLesson(l)
	h.Render(w, http.StatusOK, "lesson_form", data)
}

func (h *Handler) HandleUpdateLesson(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	v := auth.FromContext(r.Context())
	l, ok := h.ownLesson(w, r, id)
	if !ok {
		return
	}
	if err := parseUpload(r); err != nil {
		h.Redirect(w, r, "/dashboard/update-lesson/"+id, auth.FlashError, "Could not read the form")
		return
	}
	form := parseLessonForm(r)
	form.ID = id
	// A premium lesson stays premium even if the owner's plan lapsed.
	premium := v.IsPremium() || l.IsPremium()
	if errs := form.validate(premium); len(errs) > 0 {
		data := h.Base(w, r, "Update Lesson")
		data.Form, data.Errors = form, errs
		h.Render(w, http.StatusUnprocessableEntity, "lesson_form", data)
		return
	}
	if form.Image == "" {
		form.Image = l.Image
	}
	if url, ok, err := h.uploadImage(r, "image"); err != nil {
		h.log.Warn("image upload failed", "error", err)
		h.Sessions.AddFlash(w, r, auth.FlashError, "Image upload failed")
	} else if ok {
		form.Image = url
	}

	in := form.input()
	patch := models.LessonPatch{
		Title:         &in.Title,
		Description:   &in.Description,
		Category:      &in.Category,
		EmotionalTone: &in.EmotionalTone,
		Image:         &in.Image,
		Visibility:    &in.Visibility,
		AccessLevel:   &in.AccessLevel,
	}
	if err := h.API.UpdateLesson(r.Context(), id, patch); err != nil {
		h.log.Warn("update lesson failed", "lesson_id", id, "error", err)
		data := h.Base(w, r, "Update Lesson")
		data.Form = form
		data.Errors = map[string]string{"form": "Failed to update lesson. Please try again."}
		h.Render(w, http.StatusBadGateway, "lesson_form", data)
		return
	}
	h.forgetViewer(r.Context(), v)
	h.record(r.Context(), v, models.ActionLessonUpdate, id, nil)
	h.Redirect(w, r, "/dashboard/my-lessons", auth.FlashSuccess, "Lesson updated successfully")
}

func (h *Handler) HandleMyLessons(w http.ResponseWriter, r *http.Request) {
	v := auth.FromContext(r.Context())
	mine, err := h.myLessons(r.Context(), v)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	q := r.URL.Query()
	data := h.Base(w, r, "My Lessons")
	data.Lessons = listing.Sort(
		listing.FilterOwn(mine, q.Get("category"), q.Get("visibility"), q.Get("access")),
		listing.SortNewest,
	)
	data.Stats.Lessons = len(mine)
	h.Render(w, http.StatusOK, "my_lessons", data)
}

func (h *Handler) HandleDeleteLesson(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	v := auth.FromContext(r.Context())
	if _, ok := h.ownLesson(w, r, id); !ok {
		return
	}
	if err := h.API.DeleteLesson(r.Context(), id); err != nil {
		h.log.Warn("delete lesson failed", "lesson_id", id, "error", err)
		h.Redirect(w, r, "/dashboard/my-lessons", auth.FlashError, "Failed to delete lesson")
		return
	}
	h.forgetViewer(r.Context(), v)
	h.record(r.Context(), v, models.ActionLessonDelete, id, nil)
	h.Redirect(w, r, "/dashboard/my-lessons", auth.FlashSuccess, "Lesson deleted")
}

// HandleLessonSettings changes visibility or access level from the lessons
// table.
func (h *Handler) HandleLessonSettings(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	v := auth.FromContext(r.Context())
	if _, ok := h.ownLesson(w, r, id); !ok {
		return
	}

	var patch models.LessonPatch
	switch vis := models.Visibility(r.FormValue("visibility")); vis {
	case models.VisibilityPublic, models.VisibilityPrivate:
		patch.Visibility = &vis
	}
	switch acc := models.AccessLevel(r.FormValue("accessLevel")); acc {
	case models.AccessPremium:
		if !v.IsPremium() {
			h.Redirect(w, r, "/dashboard/my-lessons", auth.FlashError, "Upgrade to Premium to create premium lessons")
			return
		}
		patch.AccessLevel = &acc
	case models.AccessFree:
		patch.AccessLevel = &acc
	}
	if patch.Visibility == nil && patch.AccessLevel == nil {
		h.Redirect(w, r, "/dashboard/my-lessons", auth.FlashError, "Nothing to update")
		return
	}

	if err := h.API.UpdateLesson(r.Context(), id, patch); err != nil {
		h.log.Warn("lesson settings update failed", "lesson_id", id, "error", err)
		h.Redirect(w, r, "/dashboard/my-lessons", auth.FlashError, "Failed to update lesson")
		return
	}
	h.forgetViewer(r.Context(), v)
	h.record(r.Context(), v, models.ActionLessonUpdate, id, nil)
	h.Redirect(w, r, "/dashboard/my-lessons", auth.FlashSuccess, "Lesson updated")
}

func (h *Handler) HandleMyFavorites(w http.ResponseWriter, r *http.Request) {
	v := auth.FromContext(r.Context())
	q := r.URL.Query()
	f := api.FavoriteFilter{Category: q.Get("category"), Tone: q.Get("tone")}
	if strings.EqualFold(f.Category, "all") {
		f.Category = ""
	}
	if strings.EqualFold(f.Tone, "all") {
		f.Tone = ""
	}
	favs, err := querycache.Fetch(r.Context(), h.Cache, querycache.MyFavoritesKey(v.ID(), f.Category, f.Tone), func(ctx context.Context) ([]models.Favorite, error) {
		return h.API.Favorites(ctx, f)
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	data := h.Base(w, r, "My Favorites")
	data.Favorites = favs
	h.Render(w, http.StatusOK, "my_favorites", data)
}

func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	v := auth.FromContext(r.Context())
	mine, err := h.myLessons(r.Context(), v)
	if err != nil {
		h.log.Warn("own lessons unavailable", "error", err)
	}
	data := h.Base(w, r, "My Profile")
	data.Profile = v.User
	data.Lessons = listing.Sort(listing.FilterOwn(mine, "", string(models.VisibilityPublic), ""), listing.SortNewest)
	data.Stats.Lessons = len(mine)
	h.Render(w, http.StatusOK, "profile", data)
}

func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	v := auth.FromContext(r.Context())
	if err := parseUpload(r); err != nil {
		h.Redirect(w, r, "/dashboard/profile", auth.FlashError, "Could not read the form")
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		h.Redirect(w, r, "/dashboard/profile", auth.FlashError, "Name is required")
		return
	}
	photo := strings.TrimSpace(r.FormValue("photoURL"))
	if photo == "" {
		photo = v.User.PhotoURL
	}
	if url, ok, err := h.uploadImage(r, "photo"); err != nil {
		h.log.Warn("photo upload failed", "error", err)
		h.Sessions.AddFlash(w, r, auth.FlashError, "Image upload failed")
	} else if ok {
		photo = url
	}

	email := v.User.Email
	if email == "" {
		email = v.Email
	}
	if _, err := h.API.SyncUser(r.Context(), models.SyncRequest{Name: name, PhotoURL: photo, Email: email}); err != nil {
		h.log.Warn("profile update failed", "error", err)
		h.Redirect(w, r, "/dashboard/profile", auth.FlashError, "Failed to update profile")
		return
	}
	if _, err := h.Resolver.Refresh(r.Context(), v); err != nil {
		h.log.Warn("profile reload failed", "error", err)
	}
	h.Redirect(w, r, "/dashboard/profile", auth.FlashSuccess, "Profile updated successfully")
}

// HandleRemoveFavorite removes a lesson from the favorites page.
func (h *Handler) HandleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	v := auth.FromContext(r.Context())
	res, err := h.Engagement.ToggleFavorite(r.Context(), v.ID(), id, true)
	if err == nil {
		h.record(r.Context(), v, models.ActionUnfavorite, id, nil)
	}
	kind := auth.FlashSuccess
	if err != nil {
		kind = auth.FlashError
	}
	h.Redirect(w, r, "/dashboard/my-favorites", kind, res.Notice)
}

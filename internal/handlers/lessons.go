package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/s/lifelessons/internal/api"
	"github.com/s/lifelessons/internal/auth"
	"github.com/s/lifelessons/internal/listing"
	"github.com/s/lifelessons/internal/models"
	"github.com/s/lifelessons/internal/querycache"
)

const (
	homeSectionSize = 6
	topContributors = 4
	similarLimit    = 6
)

// publicLessons is the bulk catalogue every list page processes locally.
func (h *Handler) publicLessons(ctx context.Context, v auth.Viewer) ([]models.Lesson, error) {
	return querycache.Fetch(ctx, h.Cache, querycache.PublicLessonsKey(v.ID()), func(ctx context.Context) ([]models.Lesson, error) {
		page, err := h.API.PublicLessons(ctx, api.PublicFilter{Limit: listing.BulkLimit})
		return page.Lessons, err
	})
}

func (h *Handler) lesson(ctx context.Context, v auth.Viewer, id string) (models.Lesson, error) {
	return querycache.Fetch(ctx, h.Cache, querycache.LessonKey(v.ID(), id), func(ctx context.Context) (models.Lesson, error) {
		return h.API.GetLesson(ctx, id)
	})
}

func (h *Handler) favorites(ctx context.Context, v auth.Viewer) ([]models.Favorite, error) {
	return querycache.Fetch(ctx, h.Cache, querycache.FavoritesKey(v.ID()), func(ctx context.Context) ([]models.Favorite, error) {
		return h.API.Favorites(ctx, api.FavoriteFilter{})
	})
}

func (h *Handler) HandleMain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v := auth.FromContext(ctx)

	var featured, public []models.Lesson
	var g errgroup.Group
	g.Go(func() error {
		var err error
		featured, err = querycache.Fetch(ctx, h.Cache, querycache.FeaturedKey(v.ID()), h.API.FeaturedLessons)
		return err
	})
	g.Go(func() error {
		var err error
		public, err = h.publicLessons(ctx, v)
		return err
	})
	err := g.Wait()

	data := h.Base(w, r, "Home")
	if err != nil {
		h.log.Warn("home sections unavailable", "error", err)
		data.Unavailable = true
	}
	data.Featured = featured
	data.MostSaved = firstN(listing.Sort(public, listing.SortMostSaved), homeSectionSize)
	data.Contributors = listing.TopContributors(public, topContributors)
	h.Render(w, http.StatusOK, "home", data)
}

// queryFrom reads the list filters shared by the catalogue pages.
func queryFrom(q url.Values, pageSize int) listing.Query {
	page, _ := strconv.Atoi(q.Get("page"))
	sort := q.Get("sort")
	if sort == "" {
		sort = listing.SortNewest
	}
	return listing.Query{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		Tone:     q.Get("tone"),
		AuthorID: q.Get("authorId"),
		Sort:     sort,
		Page:     page,
		PageSize: pageSize,
	}
}

// pager builds page links that keep every other query parameter.
func pager(u *url.URL, p listing.Page) (links []PageLink, prev, next string) {
	at := func(n int) string {
		q := u.Query()
		q.Set("page", strconv.Itoa(n))
		return u.Path + "?" + q.Encode()
	}
	for _, n := range p.Numbers() {
		links = append(links, PageLink{Number: n, URL: at(n), Current: n == p.Page})
	}
	if p.HasPrev() {
		prev = at(p.Page - 1)
	}
	if p.HasNext() {
		next = at(p.Page + 1)
	}
	return links, prev, next
}

func (h *Handler) HandlePublicLessons(w http.ResponseWriter, r *http.Request) {
	h.catalogue(w, r, "Public Lessons", false)
}

// HandlePremiumLessons lists only premium lessons; the route is premium
// guarded.
func (h *Handler) HandlePremiumLessons(w http.ResponseWriter, r *http.Request) {
	h.catalogue(w, r, "Premium Lessons", true)
}

func (h *Handler) catalogue(w http.ResponseWriter, r *http.Request, title string, premiumOnly bool) {
	v := auth.FromContext(r.Context())
	lessons, err := h.publicLessons(r.Context(), v)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if premiumOnly {
		kept := make([]models.Lesson, 0, len(lessons))
		for _, l := range lessons {
			if l.IsPremium() {
				kept = append(kept, l)
			}
		}
		lessons = kept
	}

	data := h.Base(w, r, title)
	data.Page = listing.Process(lessons, queryFrom(r.URL.Query(), h.Config.PageSize))
	data.Pager, data.PrevURL, data.NextURL = pager(r.URL, data.Page)
	page := "public_lessons"
	if premiumOnly {
		page = "premium_lessons"
	}
	h.Render(w, http.StatusOK, page, data)
}

func (h *Handler) HandleAuthor(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	v := auth.FromContext(r.Context())
	lessons, err := querycache.Fetch(r.Context(), h.Cache, querycache.AuthorLessonsKey(v.ID(), id), func(ctx context.Context) ([]models.Lesson, error) {
		return h.API.AuthorLessons(ctx, id)
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	data := h.Base(w, r, "Author")
	data.Author = models.Author{ID: id, Name: models.UnknownAuthor}
	if len(lessons) > 0 {
		data.Author = lessons[0].Author
		data.Title = data.Author.Name
	}
	data.Lessons = listing.Sort(lessons, listing.SortNewest)
	for _, l := range lessons {
		data.Stats.Likes += l.LikeCount()
	}
	h.Render(w, http.StatusOK, "author", data)
}

func (h *Handler) similar(ctx context.Context, v auth.Viewer, l models.Lesson, field string) ([]models.Lesson, error) {
	f := api.PublicFilter{Limit: similarLimit + 1}
	value := string(l.Category)
	same := listing.SameCategory
	if field == "tone" {
		f.Tone, value, same = string(l.EmotionalTone), string(l.EmotionalTone), listing.SameTone
	} else {
		f.Category = value
	}
	lessons, err := querycache.Fetch(ctx, h.Cache, querycache.SimilarKey(v.ID(), field, value), func(ctx context.Context) ([]models.Lesson, error) {
		page, err := h.API.PublicLessons(ctx, f)
		return page.Lessons, err
	})
	if err != nil {
		return nil, err
	}
	return listing.Similar(lessons, l, similarLimit, same), nil
}

func isOwner(v auth.Viewer, l models.Lesson) bool {
	if !v.Authenticated {
		return false
	}
	if l.Author.ID != "" && l.Author.ID == v.ID() {
		return true
	}
	return l.Author.Email != "" && strings.EqualFold(l.Author.Email, v.Email)
}

func (h *Handler) HandleLesson(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]
	v := auth.FromContext(ctx)

	l, err := h.lesson(ctx, v, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	data := h.Base(w, r, l.Title)
	data.Lesson = l
	data.IsOwner = isOwner(v, l)
	data.Liked = l.LikedBy(v.ID())
	// Premium gating is advisory; the API decides what it returns.
	data.Locked = l.IsPremium() && !v.IsPremium() && !data.IsOwner

	// Secondary sections degrade to empty on failure.
	var g errgroup.Group
	g.Go(func() error {
		favs, err := h.favorites(ctx, v)
		if err != nil {
			h.log.Warn("favorites unavailable", "error", err)
			return nil
		}
		data.Favorited = models.HasFavorite(favs, id)
		return nil
	})
	g.Go(func() error {
		comments, err := querycache.Fetch(ctx, h.Cache, querycache.CommentsKey(v.ID(), id), func(ctx context.Context) ([]models.Comment, error) {
			return h.API.Comments(ctx, id)
		})
		if err != nil {
			h.log.Warn("comments unavailable", "lesson_id", id, "error", err)
			return nil
		}
		data.Comments = comments
		return nil
	})
	g.Go(func() error {
		same, err := h.similar(ctx, v, l, "category")
		if err != nil {
			h.log.Warn("similar lessons unavailable", "error", err)
			return nil
		}
		data.SameCategory = same
		return nil
	})
	g.Go(func() error {
		same, err := h.similar(ctx, v, l, "tone")
		if err != nil {
			h.log.Warn("similar lessons unavailable", "error", err)
			return nil
		}
		data.SameTone = same
		return nil
	})
	_ = g.Wait()

	h.Render(w, http.StatusOK, "lesson", data)
}

func firstN(ls []models.Lesson, n int) []models.Lesson {
	if len(ls) > n {
		return ls[:n]
	}
	return ls
}

// Package engagement implements optimistic like and favorite toggles.
//
// A toggle applies its expected outcome to the viewer's cached lesson (and
// favorites list) before the remote write, so the next page render already
// shows it. A failed write restores the cached entries exactly as they were.
package engagement

import (
	"context"
	"errors"

	"github.com/s/lifelessons/internal/logger"
	"github.com/s/lifelessons/internal/models"
	"github.com/s/lifelessons/internal/querycache"
)

var ErrLoginRequired = errors.New("login required")

const (
	NoticeLoginToLike     = "Please log in to like"
	NoticeLoginToFavorite = "Please log in to add to favorites"
	NoticeLiked           = "Liked"
	NoticeUnliked         = "Like removed"
	NoticeFavorited       = "Added to favorites"
	NoticeUnfavorited     = "Removed from favorites"
	NoticeLikeFailed      = "Failed to update like"
	NoticeFavoriteFailed  = "Failed to update favorite"
)

// Remote performs the authoritative writes.
type Remote interface {
	ToggleLike(ctx context.Context, lessonID string) error
	AddFavorite(ctx context.Context, lessonID string) error
	RemoveFavorite(ctx context.Context, lessonID string) error
}

// Result is the outcome of a toggle. Active is the state the viewer should
// see after it: liked or favorited.
type Result struct {
	Active bool
	Notice string
}

type Service struct {
	log    *logger.Logger
	cache  *querycache.Cache
	remote Remote
	locks  keyedMutex
}

func NewService(log *logger.Logger, cache *querycache.Cache, remote Remote) *Service {
	return &Service{
		log:    log.With("component", "Engagement"),
		cache:  cache,
		remote: remote,
	}
}

// ToggleLike flips the viewer's like. currentlyLiked is what the page showed
// and only decides the direction when the lesson is not cached.
func (s *Service) ToggleLike(ctx context.Context, viewerID, lessonID string, currentlyLiked bool) (Result, error) {
	if viewerID == "" {
		return Result{Active: currentlyLiked, Notice: NoticeLoginToLike}, ErrLoginRequired
	}
	unlock := s.locks.Lock(viewerID + "|" + lessonID + "|like")
	defer unlock()

	lessonKey := querycache.LessonKey(viewerID, lessonID)
	s.cache.Cancel(lessonKey)
	snap, err := s.cache.Snapshot(ctx, lessonKey)
	if err != nil {
		return Result{Active: currentlyLiked, Notice: NoticeLikeFailed}, err
	}

	current := currentlyLiked
	if l, ok, err := querycache.Get[models.Lesson](ctx, s.cache, lessonKey); err == nil && ok {
		current = l.LikedBy(viewerID)
	}
	liked := !current
	if _, err := querycache.Update(ctx, s.cache, lessonKey, func(l models.Lesson, found bool) (models.Lesson, bool) {
		if !found || l.LikedBy(viewerID) == liked {
			return l, false
		}
		l.Likes = setMember(l.Likes, viewerID, liked)
		l.LikesCount = step(l.LikeCount(), liked)
		return l, true
	}); err != nil {
		s.log.Warn("optimistic like update failed", "lesson_id", lessonID, "error", err)
	}

	if err := s.remote.ToggleLike(ctx, lessonID); err != nil {
		s.rollback(ctx, snap, lessonID)
		s.log.Warn("like write failed, rolled back", "lesson_id", lessonID, "error", err)
		return Result{Active: current, Notice: NoticeLikeFailed}, err
	}

	s.settle(ctx, viewerID, lessonKey)
	notice := NoticeUnliked
	if liked {
		notice = NoticeLiked
	}
	return Result{Active: liked, Notice: notice}, nil
}

// ToggleFavorite flips the viewer's favorite. The cached favorites list, then
// the cached lesson, decide the current state before currentlyFavorited does.
func (s *Service) ToggleFavorite(ctx context.Context, viewerID, lessonID string, currentlyFavorited bool) (Result, error) {
	if viewerID == "" {
		return Result{Active: currentlyFavorited, Notice: NoticeLoginToFavorite}, ErrLoginRequired
	}
	unlock := s.locks.Lock(viewerID + "|" + lessonID + "|favorite")
	defer unlock()

	lessonKey := querycache.LessonKey(viewerID, lessonID)
	favKey := querycache.FavoritesKey(viewerID)
	s.cache.Cancel(lessonKey, favKey)
	snap, err := s.cache.Snapshot(ctx, lessonKey, favKey)
	if err != nil {
		return Result{Active: currentlyFavorited, Notice: NoticeFavoriteFailed}, err
	}

	current := s.favorited(ctx, viewerID, lessonID, currentlyFavorited)
	favorited := !current
	var cached *models.Lesson
	if _, err := querycache.Update(ctx, s.cache, lessonKey, func(l models.Lesson, found bool) (models.Lesson, bool) {
		if !found {
			return l, false
		}
		if l.FavoritedBy(viewerID) != favorited {
			l.Favorites = setMember(l.Favorites, viewerID, favorited)
			l.FavoritesCount = step(l.FavoriteCount(), favorited)
		}
		cached = &l
		return l, true
	}); err != nil {
		s.log.Warn("optimistic favorite update failed", "lesson_id", lessonID, "error", err)
	}
	if _, err := querycache.Update(ctx, s.cache, favKey, func(favs []models.Favorite, found bool) ([]models.Favorite, bool) {
		if !found {
			return favs, false
		}
		return toggleFavorite(favs, lessonID, cached, favorited), true
	}); err != nil {
		s.log.Warn("optimistic favorites list update failed", "lesson_id", lessonID, "error", err)
	}

	var werr error
	if favorited {
		werr = s.remote.AddFavorite(ctx, lessonID)
	} else {
		werr = s.remote.RemoveFavorite(ctx, lessonID)
	}
	if werr != nil {
		s.rollback(ctx, snap, lessonID)
		s.log.Warn("favorite write failed, rolled back", "lesson_id", lessonID, "error", werr)
		return Result{Active: current, Notice: NoticeFavoriteFailed}, werr
	}

	s.settle(ctx, viewerID, lessonKey)
	notice := NoticeUnfavorited
	if favorited {
		notice = NoticeFavorited
	}
	return Result{Active: favorited, Notice: notice}, nil
}

func (s *Service) favorited(ctx context.Context, viewerID, lessonID string, fallback bool) bool {
	if favs, ok, err := querycache.Get[[]models.Favorite](ctx, s.cache, querycache.FavoritesKey(viewerID)); err == nil && ok {
		return models.HasFavorite(favs, lessonID)
	}
	if l, ok, err := querycache.Get[models.Lesson](ctx, s.cache, querycache.LessonKey(viewerID, lessonID)); err == nil && ok {
		return l.FavoritedBy(viewerID)
	}
	return fallback
}

func (s *Service) rollback(ctx context.Context, snap querycache.Snapshot, lessonID string) {
	if err := s.cache.Restore(ctx, snap); err != nil {
		s.log.Error("cache rollback failed", "lesson_id", lessonID, "error", err)
	}
}

// settle marks every query touched by a successful toggle stale, including
// the lists that show counts or sort by them.
func (s *Service) settle(ctx context.Context, viewerID string, lessonKey querycache.Key) {
	for _, k := range []querycache.Key{
		lessonKey,
		querycache.FavoritesPrefix(viewerID),
		querycache.ProfileKey(viewerID),
		querycache.PublicLessonsKey(viewerID),
		querycache.MyLessonsKey(viewerID),
		querycache.AuthorLessonsPrefix(viewerID),
		querycache.FeaturedKey(viewerID),
	} {
		if err := s.cache.Invalidate(ctx, k); err != nil {
			s.log.Warn("cache invalidation failed", "key", k.String(), "error", err)
		}
	}
}

func setMember(ids []string, id string, present bool) []string {
	out := make([]string, 0, len(ids)+1)
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	if present {
		out = append(out, id)
	}
	return out
}

// step moves a counter one unit toward the new state, never below zero.
func step(n int, up bool) int {
	if up {
		return n + 1
	}
	if n <= 0 {
		return 0
	}
	return n - 1
}

func toggleFavorite(favs []models.Favorite, lessonID string, lesson *models.Lesson, add bool) []models.Favorite {
	out := make([]models.Favorite, 0, len(favs)+1)
	for _, f := range favs {
		if f.LessonID() != lessonID {
			out = append(out, f)
		}
	}
	if add {
		if lesson == nil {
			lesson = &models.Lesson{ID: lessonID}
		}
		out = append(out, models.Favorite{ID: lessonID, Lesson: lesson})
	}
	return out
}

package querycache

const anonymousScope = "anon"

// Scope is the root key of everything cached for one viewer. Anonymous
// viewers share a single scope.
func Scope(viewerID string) Key {
	if viewerID == "" {
		return Key{anonymousScope}
	}
	return Key{"u:" + viewerID}
}

func scoped(viewerID string, parts ...string) Key {
	return append(Scope(viewerID), parts...)
}

func LessonKey(viewerID, lessonID string) Key { return scoped(viewerID, "lesson", lessonID) }

func CommentsKey(viewerID, lessonID string) Key { return scoped(viewerID, "comments", lessonID) }

// FavoritesPrefix covers every cached favorites list of the viewer.
func FavoritesPrefix(viewerID string) Key { return scoped(viewerID, "favorites") }

// FavoritesKey is the unfiltered favorites list used to show favorite state.
func FavoritesKey(viewerID string) Key { return scoped(viewerID, "favorites", "all") }

// MyFavoritesKey is a favorites list filtered for the dashboard page.
func MyFavoritesKey(viewerID, category, tone string) Key {
	return scoped(viewerID, "favorites", "filtered", category, tone)
}

func ProfileKey(viewerID string) Key { return scoped(viewerID, "profile") }

func MyLessonsKey(viewerID string) Key { return scoped(viewerID, "my-lessons") }

func PublicLessonsKey(viewerID string) Key { return scoped(viewerID, "public-lessons") }

func AuthorLessonsKey(viewerID, authorID string) Key {
	return append(AuthorLessonsPrefix(viewerID), authorID)
}

func AuthorLessonsPrefix(viewerID string) Key { return scoped(viewerID, "author-lessons") }

// AdminPrefix covers every admin query of the viewer.
func AdminPrefix(viewerID string) Key { return scoped(viewerID, "admin") }

func AdminKey(viewerID string, parts ...string) Key {
	return append(AdminPrefix(viewerID), parts...)
}

func FeaturedKey(viewerID string) Key { return scoped(viewerID, "featured") }

// SimilarKey caches the short list of public lessons sharing field=value.
func SimilarKey(viewerID, field, value string) Key {
	return scoped(viewerID, "similar", field, value)
}

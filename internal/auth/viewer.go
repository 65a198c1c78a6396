// Package auth resolves who is looking at a page: the session, the identity
// token used as API bearer, and the viewer's profile.
package auth

import (
	"context"

	"github.com/s/lifelessons/internal/models"
)

// Viewer is the per-request identity. It is a value; handlers never mutate
// a Viewer they did not build.
//
// SessionResolved is false when the identity token could not be refreshed
// because the identity provider was unreachable. ProfileResolved is false
// when /users/me could not be loaded for the same reason. Guards that need
// those parts wait instead of deciding.
type Viewer struct {
	Authenticated   bool
	SessionResolved bool
	ProfileResolved bool
	UserID          string
	Email           string
	User            models.User
	Token           string
}

func Anonymous() Viewer {
	return Viewer{SessionResolved: true, ProfileResolved: true}
}

// ID is the API user id, taken from the profile once it is known.
func (v Viewer) ID() string {
	if !v.Authenticated {
		return ""
	}
	if v.User.ID != "" {
		return v.User.ID
	}
	return v.UserID
}

func (v Viewer) IsAdmin() bool { return v.Authenticated && v.ProfileResolved && v.User.IsAdmin() }

func (v Viewer) IsPremium() bool { return v.Authenticated && v.ProfileResolved && v.User.IsPremium }

func (v Viewer) DisplayName() string {
	if v.User.DisplayName != "" {
		return v.User.DisplayName
	}
	return v.Email
}

type viewerKey struct{}

func WithViewer(ctx context.Context, v Viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

// FromContext returns the viewer attached by the middleware, or an
// anonymous viewer.
func FromContext(ctx context.Context) Viewer {
	if v, ok := ctx.Value(viewerKey{}).(Viewer); ok {
		return v
	}
	return Anonymous()
}

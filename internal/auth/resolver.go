package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/s/lifelessons/internal/api"
	"github.com/s/lifelessons/internal/apierr"
	"github.com/s/lifelessons/internal/logger"
	"github.com/s/lifelessons/internal/models"
	"github.com/s/lifelessons/internal/querycache"
)

// refreshSkew renews identity tokens this long before they expire.
const refreshSkew = 30 * time.Second

type ProfileSource interface {
	Me(ctx context.Context) (models.User, error)
}

type Resolver struct {
	log      *logger.Logger
	sessions *Sessions
	cache    *querycache.Cache
	profiles  ProfileSource
	provider  Provider
	passwords PasswordProvider
	now       func() time.Time
}

// NewResolver builds a resolver. provider and passwords may be nil when
// that kind of login is not configured; its sessions then never refresh.
func NewResolver(log *logger.Logger, sessions *Sessions, cache *querycache.Cache, profiles ProfileSource, provider Provider, passwords PasswordProvider) *Resolver {
	return &Resolver{
		log:       log.With("component", "ViewerResolver"),
		sessions:  sessions,
		cache:     cache,
		profiles:  profiles,
		provider:  provider,
		passwords: passwords,
		now:       time.Now,
	}
}

type refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// refresherFor picks the endpoint that issued the session's tokens.
// Sessions from before issuers were recorded came from Google.
func (res *Resolver) refresherFor(issuer string) refresher {
	if issuer == IssuerPassword {
		if res.passwords == nil {
			return nil
		}
		return res.passwords
	}
	if res.provider == nil {
		return nil
	}
	return res.provider
}

// Resolve builds the viewer for r. Unreachable services leave the affected
// part unresolved; a rejected identity clears the session and yields an
// anonymous viewer.
func (res *Resolver) Resolve(w http.ResponseWriter, r *http.Request) Viewer {
	st := res.sessions.load(r)
	if st.IDToken == "" {
		return Anonymous()
	}

	claims, err := parseClaims(st.IDToken)
	if err != nil {
		res.log.Warn("undecodable identity token, clearing session", "error", err)
		res.drop(w, r)
		return Anonymous()
	}

	token := st.IDToken
	if !res.now().Before(claims.expiry.Add(-refreshSkew)) {
		refresher := res.refresherFor(st.Issuer)
		if st.RefreshToken == "" || refresher == nil {
			res.drop(w, r)
			return Anonymous()
		}
		fresh, err := refresher.Refresh(r.Context(), st.RefreshToken)
		if err != nil {
			if isAuthFailure(err) {
				res.log.Info("refresh token rejected, clearing session", "error", err)
				res.drop(w, r)
				return Anonymous()
			}
			res.log.Warn("identity provider unreachable, session pending", "error", err)
			return Viewer{Authenticated: true, UserID: st.UserID, Email: st.Email}
		}
		if err := res.sessions.updateTokens(w, r, fresh); err != nil {
			res.log.Warn("session save failed after refresh", "error", err)
		}
		token = fresh.IDToken
		claims.identity = fresh.Identity
	}

	v := Viewer{
		Authenticated:   true,
		SessionResolved: true,
		UserID:          st.UserID,
		Email:           st.Email,
		Token:           token,
	}
	if v.UserID == "" {
		v.UserID = "sub:" + claims.identity.Subject
	}
	return res.loadProfile(w, r, v)
}

func (res *Resolver) loadProfile(w http.ResponseWriter, r *http.Request, v Viewer) Viewer {
	ctx := api.WithBearer(r.Context(), v.Token)
	user, err := querycache.Fetch(ctx, res.cache, querycache.ProfileKey(v.UserID), res.profiles.Me)
	switch {
	case err == nil:
		v.User = user
		v.ProfileResolved = true
	case apierr.IsUnauthorized(err):
		res.log.Info("api rejected identity, clearing session")
		res.drop(w, r)
		return Anonymous()
	default:
		res.log.Warn("profile unavailable", "user_id", v.UserID, "error", err)
	}
	return v
}

// Refresh reloads the viewer's profile, e.g. after a payment or a profile
// edit changed it on the server.
func (res *Resolver) Refresh(ctx context.Context, v Viewer) (Viewer, error) {
	if !v.Authenticated {
		return v, nil
	}
	key := querycache.ProfileKey(v.UserID)
	if err := res.cache.Invalidate(ctx, key); err != nil {
		return v, err
	}
	user, err := querycache.Fetch(api.WithBearer(ctx, v.Token), res.cache, key, res.profiles.Me)
	if err != nil {
		return v, err
	}
	v.User = user
	v.ProfileResolved = true
	return v, nil
}

// Forget drops everything cached for the viewer.
func (res *Resolver) Forget(ctx context.Context, v Viewer) {
	if v.UserID == "" {
		return
	}
	if err := res.cache.Remove(ctx, querycache.Scope(v.UserID)); err != nil {
		res.log.Warn("viewer cache cleanup failed", "error", err)
	}
}

func (res *Resolver) drop(w http.ResponseWriter, r *http.Request) {
	if err := res.sessions.Clear(w, r); err != nil {
		res.log.Warn("session clear failed", "error", err)
	}
}

// Middleware resolves the viewer once per request and attaches it, with
// its bearer token, to the request context.
func (res *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := res.Resolve(w, r)
		ctx := WithViewer(r.Context(), v)
		if v.Token != "" {
			ctx = api.WithBearer(ctx, v.Token)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

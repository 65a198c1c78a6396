// Package guard decides whether a viewer may see a protected page.
package guard

import (
	"net/http"
	"net/url"

	"github.com/s/lifelessons/internal/auth"
	"github.com/s/lifelessons/internal/logger"
)

type Kind int

const (
	Authenticated Kind = iota
	Admin
	Premium
)

func (k Kind) String() string {
	switch k {
	case Admin:
		return "admin"
	case Premium:
		return "premium"
	default:
		return "auth"
	}
}

type State int

const (
	Pending State = iota
	Denied
	Granted
)

const (
	MsgLogin   = "Please login to access this page"
	MsgAdmin   = "You do not have admin privileges"
	MsgPremium = "This feature requires a Premium subscription"
)

// Decision is the outcome of a guard. Target and Message are set only when
// State is Denied; Target "/login" means a login redirect that should carry
// the originating path.
type Decision struct {
	State   State
	Target  string
	Message string
}

var (
	pending    = Decision{State: Pending}
	granted    = Decision{State: Granted}
	loginFirst = Decision{State: Denied, Target: "/login", Message: MsgLogin}
)

func Evaluate(kind Kind, v auth.Viewer) Decision {
	if !v.SessionResolved {
		return pending
	}
	if !v.Authenticated {
		return loginFirst
	}
	switch kind {
	case Admin:
		if !v.ProfileResolved {
			return pending
		}
		if !v.IsAdmin() {
			return Decision{State: Denied, Target: "/", Message: MsgAdmin}
		}
	case Premium:
		if !v.ProfileResolved {
			return pending
		}
		if !v.IsPremium() {
			return Decision{State: Denied, Target: "/pricing", Message: MsgPremium}
		}
	}
	return granted
}

// LoginURL is the login page remembering where the viewer was headed.
func LoginURL(from string) string {
	if from == "" || from == "/login" {
		return "/login"
	}
	return "/login?from=" + url.QueryEscape(from)
}

// PendingRetrySeconds is how soon the loading page asks the browser to
// retry.
const PendingRetrySeconds = "2"

type Guard struct {
	log      *logger.Logger
	sessions *auth.Sessions
	pending  http.Handler
}

// New builds the guard middleware factory. pending renders the loading page
// shown while the viewer is not resolved yet.
func New(log *logger.Logger, sessions *auth.Sessions, pending http.Handler) *Guard {
	return &Guard{
		log:      log.With("component", "Guard"),
		sessions: sessions,
		pending:  pending,
	}
}

// Require wraps next so it only runs for viewers kind admits.
func (g *Guard) Require(kind Kind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := auth.FromContext(r.Context())
			d := Evaluate(kind, v)
			path := r.URL.Path

			switch d.State {
			case Pending:
				w.Header().Set("Refresh", PendingRetrySeconds)
				w.Header().Set("Cache-Control", "no-store")
				g.pending.ServeHTTP(w, r)
			case Denied:
				g.sessions.NotifyOnce(w, r, path, auth.FlashError, d.Message)
				target := d.Target
				if target == "/login" {
					target = LoginURL(r.URL.RequestURI())
				}
				g.log.Debug("access denied", "guard", kind.String(), "path", path, "target", target)
				http.Redirect(w, r, target, http.StatusSeeOther)
			default:
				g.sessions.ClearNotified(w, r)
				next.ServeHTTP(w, r)
			}
		})
	}
}

// Wrap is Require for a HandlerFunc.
func (g *Guard) Wrap(kind Kind, h http.HandlerFunc) http.Handler {
	return g.Require(kind)(h)
}

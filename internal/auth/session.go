package auth

import (
	"net/http"
	"strings"

	"github.com/gorilla/sessions"

	"github.com/s/lifelessons/internal/logger"
)

const SessionName = "session"

const (
	keyIDToken      = "id_token"
	keyRefreshToken = "refresh_token"
	keyUserID       = "user_id"
	keyEmail        = "email"
	keyName         = "name"
	keyPicture      = "picture_url"
	keyIssuer       = "issuer"
	keyOAuthState   = "oauth_state"
	keyReturnTo     = "return_to"
	keyNotified     = "notified"
	// gorilla/sessions keeps flashes under this key.
	keyFlashes = "_flash"
)

// maxFlashes bounds the queue so an undrained session never outgrows the
// cookie.
const maxFlashes = 5

// Sessions wraps the cookie store with the few operations pages need.
type Sessions struct {
	log   *logger.Logger
	store sessions.Store
}

// NewCookieStore builds the store the way every page expects it: one week,
// HTTP only, secure when served over TLS.
func NewCookieStore(key []byte, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

func NewSessions(log *logger.Logger, store sessions.Store) *Sessions {
	return &Sessions{log: log.With("component", "Sessions"), store: store}
}

// get never fails: an undecodable cookie yields a fresh session.
func (s *Sessions) get(r *http.Request) *sessions.Session {
	sess, err := s.store.Get(r, SessionName)
	if err != nil && sess == nil {
		sess = sessions.NewSession(s.store, SessionName)
		sess.Options = &sessions.Options{Path: "/", HttpOnly: true}
	}
	return sess
}

func str(sess *sessions.Session, key string) string {
	v, _ := sess.Values[key].(string)
	return v
}

// Login stores a freshly issued identity.
func (s *Sessions) Login(w http.ResponseWriter, r *http.Request, tokens Tokens, userID string) error {
	sess := s.get(r)
	delete(sess.Values, keyNotified)
	sess.Values[keyIDToken] = tokens.IDToken
	sess.Values[keyRefreshToken] = tokens.RefreshToken
	sess.Values[keyIssuer] = tokens.Issuer
	sess.Values[keyUserID] = userID
	sess.Values[keyEmail] = tokens.Identity.Email
	sess.Values[keyName] = tokens.Identity.Name
	sess.Values[keyPicture] = tokens.Identity.Picture
	return sess.Save(r, w)
}

func (s *Sessions) updateTokens(w http.ResponseWriter, r *http.Request, tokens Tokens) error {
	sess := s.get(r)
	sess.Values[keyIDToken] = tokens.IDToken
	if tokens.RefreshToken != "" {
		sess.Values[keyRefreshToken] = tokens.RefreshToken
	}
	return sess.Save(r, w)
}

// Clear ends the session.
func (s *Sessions) Clear(w http.ResponseWriter, r *http.Request) error {
	sess := s.get(r)
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

type stored struct {
	IDToken      string
	RefreshToken string
	Issuer       string
	UserID       string
	Email        string
}

func (s *Sessions) load(r *http.Request) stored {
	sess := s.get(r)
	return stored{
		IDToken:      str(sess, keyIDToken),
		RefreshToken: str(sess, keyRefreshToken),
		Issuer:       str(sess, keyIssuer),
		UserID:       str(sess, keyUserID),
		Email:        str(sess, keyEmail),
	}
}

// BeginLogin remembers the OAuth state and where to go afterwards.
func (s *Sessions) BeginLogin(w http.ResponseWriter, r *http.Request, state, returnTo string) error {
	sess := s.get(r)
	sess.Values[keyOAuthState] = state
	sess.Values[keyReturnTo] = returnTo
	return sess.Save(r, w)
}

// TakeLogin returns and forgets the pending OAuth state and return path.
func (s *Sessions) TakeLogin(w http.ResponseWriter, r *http.Request) (state, returnTo string) {
	sess := s.get(r)
	state, returnTo = str(sess, keyOAuthState), str(sess, keyReturnTo)
	delete(sess.Values, keyOAuthState)
	delete(sess.Values, keyReturnTo)
	s.save(w, r, sess)
	return state, returnTo
}

// save is for writes whose failure the caller cannot act on.
func (s *Sessions) save(w http.ResponseWriter, r *http.Request, sess *sessions.Session) {
	if err := sess.Save(r, w); err != nil {
		s.log.Warn("session save failed", "path", r.URL.Path, "error", err)
	}
}

func queue(sess *sessions.Session, kind, message string) {
	sess.AddFlash(kind + ":" + message)
	if q, ok := sess.Values[keyFlashes].([]interface{}); ok && len(q) > maxFlashes {
		sess.Values[keyFlashes] = q[len(q)-maxFlashes:]
	}
}

// NotifyOnce queues message for the guarded page at path unless this visit
// already did, and reports whether it queued. The mark is cleared when the
// flashes are shown, so the next visit to path notifies again.
func (s *Sessions) NotifyOnce(w http.ResponseWriter, r *http.Request, path, kind, message string) bool {
	sess := s.get(r)
	if done, _ := sess.Values[keyNotified].(string); done == path {
		return false
	}
	sess.Values[keyNotified] = path
	queue(sess, kind, message)
	s.save(w, r, sess)
	return true
}

// ClearNotified ends the current visit's notification mark.
func (s *Sessions) ClearNotified(w http.ResponseWriter, r *http.Request) {
	sess := s.get(r)
	if _, ok := sess.Values[keyNotified]; !ok {
		return
	}
	delete(sess.Values, keyNotified)
	s.save(w, r, sess)
}

const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

type Flash struct {
	Kind    string
	Message string
}

// AddFlash queues a notification for the next rendered page.
func (s *Sessions) AddFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	sess := s.get(r)
	queue(sess, kind, message)
	s.save(w, r, sess)
}

// Flashes drains the queued notifications. Showing them also ends the
// visit that queued a guard notification.
func (s *Sessions) Flashes(w http.ResponseWriter, r *http.Request) []Flash {
	sess := s.get(r)
	raw := sess.Flashes()
	if len(raw) == 0 {
		return nil
	}
	delete(sess.Values, keyNotified)
	s.save(w, r, sess)
	out := make([]Flash, 0, len(raw))
	for _, v := range raw {
		entry, ok := v.(string)
		if !ok {
			continue
		}
		kind, msg, found := strings.Cut(entry, ":")
		if !found {
			kind, msg = FlashInfo, entry
		}
		out = append(out, Flash{Kind: kind, Message: msg})
	}
	return out
}

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/s/lifelessons/internal/apierr"
	"github.com/s/lifelessons/internal/logger"
)

type identityServer struct {
	mu     sync.Mutex
	bodies map[string]map[string]any
	keys   []string
}

func newIdentityServer(t *testing.T, routes map[string]http.HandlerFunc) (*identityServer, *httptest.Server) {
	t.Helper()
	is := &identityServer{bodies: map[string]map[string]any{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.mu.Lock()
		is.keys = append(is.keys, r.URL.Query().Get("key"))
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			body := map[string]any{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			is.bodies[r.URL.Path] = body
		}
		is.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if fn, ok := routes[r.URL.Path]; ok {
			fn(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return is, srv
}

func newAccounts(srv *httptest.Server) *PasswordAccounts {
	return NewPasswordAccounts(logger.Nop(), "web-key", srv.URL+"/v1", srv.URL+"/v1/token", time.Second, nil)
}

func TestSignUpSetsProfile(t *testing.T) {
	first := idToken(t, "s1", time.Now().Add(time.Hour))
	second := idToken(t, "s1", time.Now().Add(2*time.Hour))
	is, srv := newIdentityServer(t, map[string]http.HandlerFunc{
		"/v1/accounts:signUp": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprintf(w, `{"idToken":%q,"refreshToken":"r1","localId":"s1","email":"dee@example.com"}`, first)
		},
		"/v1/accounts:update": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprintf(w, `{"idToken":%q,"refreshToken":"r2","displayName":"Dee"}`, second)
		},
	})

	tokens, err := newAccounts(srv).SignUp(t.Context(), Registration{
		Name: "Dee", Email: "dee@example.com", Password: "Secret1", PhotoURL: DefaultPhotoURL,
	})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if tokens.IDToken != second || tokens.RefreshToken != "r2" || tokens.Issuer != IssuerPassword {
		t.Fatalf("SignUp() tokens = %+v", tokens)
	}
	if tokens.Identity.Name != "Dee" || tokens.Identity.Picture != DefaultPhotoURL {
		t.Fatalf("identity = %+v", tokens.Identity)
	}
	is.mu.Lock()
	defer is.mu.Unlock()
	if got := is.bodies["/v1/accounts:update"]; got["idToken"] != first || got["displayName"] != "Dee" {
		t.Fatalf("update body = %v", got)
	}
	for _, k := range is.keys {
		if k != "web-key" {
			t.Fatalf("request sent key %q", k)
		}
	}
}

func TestSignInRefusals(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"INVALID_LOGIN_CREDENTIALS", "Invalid email or password"},
		{"EMAIL_NOT_FOUND", "Invalid email or password"},
		{"TOO_MANY_ATTEMPTS_TRY_LATER : Access disabled", "Too many attempts, please try again later"},
		{"SOMETHING_NEW", "fallback"},
	}
	for _, tc := range cases {
		t.Run(tc.message, func(t *testing.T) {
			_, srv := newIdentityServer(t, map[string]http.HandlerFunc{
				"/v1/accounts:signInWithPassword": func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(http.StatusBadRequest)
					_, _ = fmt.Fprintf(w, `{"error":{"code":400,"message":%q}}`, tc.message)
				},
			})
			_, err := newAccounts(srv).SignIn(t.Context(), "dee@example.com", "Secret1")
			var ae *apierr.Error
			if !errors.As(err, &ae) || ae.Status != http.StatusBadRequest {
				t.Fatalf("SignIn() error = %v", err)
			}
			if got := AccountErrorMessage(err, "fallback"); got != tc.want {
				t.Fatalf("AccountErrorMessage() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUnreachableProviderKeepsFallback(t *testing.T) {
	err := apierr.New(0, "transport_failed", io.ErrUnexpectedEOF)
	if got := AccountErrorMessage(err, "Login failed"); got != "Login failed" {
		t.Fatalf("AccountErrorMessage() = %q", got)
	}
}

func TestPasswordRefreshUsesTokenEndpoint(t *testing.T) {
	fresh := idToken(t, "s1", time.Now().Add(time.Hour))
	forms := make(chan url.Values, 1)
	_, srv := newIdentityServer(t, map[string]http.HandlerFunc{
		"/v1/token": func(w http.ResponseWriter, r *http.Request) {
			_ = r.ParseForm()
			forms <- r.PostForm
			_, _ = fmt.Fprintf(w, `{"access_token":%q,"id_token":%q,"refresh_token":"r3","token_type":"Bearer","expires_in":3600}`, fresh, fresh)
		},
	})

	tokens, err := newAccounts(srv).Refresh(t.Context(), "r1")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if tokens.IDToken != fresh || tokens.RefreshToken != "r3" || tokens.Issuer != IssuerPassword {
		t.Fatalf("Refresh() tokens = %+v", tokens)
	}
	form := <-forms
	if form.Get("grant_type") != "refresh_token" || form.Get("refresh_token") != "r1" {
		t.Fatalf("token request form = %v", form)
	}
}

func TestRejectedPasswordRefreshIsAuthFailure(t *testing.T) {
	_, srv := newIdentityServer(t, map[string]http.HandlerFunc{
		"/v1/token": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"code":400,"message":"TOKEN_EXPIRED"}}`)
		},
	})
	_, err := newAccounts(srv).Refresh(t.Context(), "r1")
	if err == nil || !isAuthFailure(err) {
		t.Fatalf("Refresh() error = %v, want an auth failure", err)
	}
}

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/s/lifelessons/internal/apierr"
	"github.com/s/lifelessons/internal/logger"
)

// DefaultPhotoURL is the avatar of accounts registered without a picture.
const DefaultPhotoURL = "https://i.ibb.co.com/fV5XzG0H/Shahed-Khan.jpg"

// Registration is a new email/password account.
type Registration struct {
	Name     string
	Email    string
	Password string
	PhotoURL string
}

// PasswordProvider creates and signs in email/password accounts at the
// identity provider. Its tokens are API bearer tokens like Google's.
type PasswordProvider interface {
	SignUp(ctx context.Context, reg Registration) (Tokens, error)
	SignIn(ctx context.Context, email, password string) (Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// Provider error codes the login pages explain to the user.
const (
	CodeEmailExists     = "EMAIL_EXISTS"
	CodeBadCredentials  = "INVALID_LOGIN_CREDENTIALS"
	CodeEmailNotFound   = "EMAIL_NOT_FOUND"
	CodeInvalidPassword = "INVALID_PASSWORD"
	CodeUserDisabled    = "USER_DISABLED"
	CodeTooManyAttempts = "TOO_MANY_ATTEMPTS_TRY_LATER"
	CodeWeakPassword    = "WEAK_PASSWORD"
)

// PasswordAccounts talks to an Identity Toolkit compatible REST endpoint.
// Token refresh goes through the secure token endpoint with oauth2.
type PasswordAccounts struct {
	log      *logger.Logger
	apiKey   string
	accounts string
	http     *http.Client
	refresh  *oauth2.Config
}

// NewPasswordAccounts builds the provider. accountsURL is the Identity
// Toolkit base (".../v1"), tokenURL the secure token base (".../v1/token").
func NewPasswordAccounts(log *logger.Logger, apiKey, accountsURL, tokenURL string, timeout time.Duration, transport http.RoundTripper) *PasswordAccounts {
	key := url.Values{"key": {apiKey}}.Encode()
	return &PasswordAccounts{
		log:      log.With("component", "PasswordAccounts"),
		apiKey:   apiKey,
		accounts: strings.TrimRight(accountsURL, "/"),
		http:     &http.Client{Timeout: timeout, Transport: transport},
		refresh: &oauth2.Config{Endpoint: oauth2.Endpoint{
			TokenURL:  strings.TrimRight(tokenURL, "/") + "?" + key,
			AuthStyle: oauth2.AuthStyleInParams,
		}},
	}
}

type accountReply struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	PhotoURL     string `json:"photoUrl"`
}

type accountError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *PasswordAccounts) SignUp(ctx context.Context, reg Registration) (Tokens, error) {
	var created accountReply
	if err := p.call(ctx, "accounts:signUp", map[string]any{
		"email":             reg.Email,
		"password":          reg.Password,
		"returnSecureToken": true,
	}, &created); err != nil {
		return Tokens{}, err
	}

	// The fresh account has no profile yet; the update returns tokens that
	// carry it.
	reply := created
	var updated accountReply
	err := p.call(ctx, "accounts:update", map[string]any{
		"idToken":           created.IDToken,
		"displayName":       reg.Name,
		"photoUrl":          reg.PhotoURL,
		"returnSecureToken": true,
	}, &updated)
	switch {
	case err != nil:
		p.log.Warn("profile update after sign up failed", "error", err)
	case updated.IDToken != "":
		reply.IDToken, reply.RefreshToken = updated.IDToken, updated.RefreshToken
	}

	tokens, err := p.tokens(reply)
	if err != nil {
		return Tokens{}, err
	}
	tokens.Identity.Name = reg.Name
	tokens.Identity.Picture = reg.PhotoURL
	return tokens, nil
}

func (p *PasswordAccounts) SignIn(ctx context.Context, email, password string) (Tokens, error) {
	var reply accountReply
	if err := p.call(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &reply); err != nil {
		return Tokens{}, err
	}
	return p.tokens(reply)
}

func (p *PasswordAccounts) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.http)
	tok, err := p.refresh.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return Tokens{}, err
	}
	tokens, err := tokensFrom(tok)
	if err != nil {
		return Tokens{}, err
	}
	tokens.Issuer = IssuerPassword
	return tokens, nil
}

func (p *PasswordAccounts) tokens(reply accountReply) (Tokens, error) {
	if reply.IDToken == "" {
		return Tokens{}, ErrNoIDToken
	}
	claims, err := parseClaims(reply.IDToken)
	if err != nil {
		return Tokens{}, err
	}
	id := claims.identity
	if id.Email == "" {
		id.Email = reply.Email
	}
	if id.Name == "" {
		id.Name = reply.DisplayName
	}
	if id.Picture == "" {
		id.Picture = reply.PhotoURL
	}
	if id.Subject == "" {
		id.Subject = reply.LocalID
	}
	return Tokens{
		IDToken:      reply.IDToken,
		RefreshToken: reply.RefreshToken,
		Expiry:       claims.expiry,
		Identity:     id,
		Issuer:       IssuerPassword,
	}, nil
}

// call posts body to the accounts method and decodes the reply into out.
// Provider refusals come back as *apierr.Error with the provider's code.
func (p *PasswordAccounts) call(ctx context.Context, method string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return apierr.New(0, "encode_failed", err)
	}
	u := p.accounts + "/" + method + "?" + url.Values{"key": {p.apiKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return apierr.New(0, "bad_request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return apierr.New(0, "transport_failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae accountError
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&ae)
		// messages look like "WEAK_PASSWORD : Password should be at least 6 characters"
		code, _, _ := strings.Cut(ae.Error.Message, " ")
		if code == "" {
			code = strings.ReplaceAll(strings.ToLower(http.StatusText(resp.StatusCode)), " ", "_")
		}
		p.log.Debug("identity provider refused", "method", method, "status", resp.StatusCode, "code", code)
		return apierr.New(resp.StatusCode, code, errors.New(code))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// AccountErrorMessage turns a sign up or sign in failure into what the
// form shows.
func AccountErrorMessage(err error, fallback string) string {
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Status < 400 || ae.Status >= 500 {
		return fallback
	}
	switch ae.Code {
	case CodeEmailExists:
		return "An account with this email already exists"
	case CodeBadCredentials, CodeEmailNotFound, CodeInvalidPassword, CodeUserDisabled:
		return "Invalid email or password"
	case CodeTooManyAttempts:
		return "Too many attempts, please try again later"
	case CodeWeakPassword:
		return "Password is too weak"
	}
	return fallback
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// Identity is what the identity token says about its holder.
type Identity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// Token issuers. The session remembers which one signed the viewer in so
// the right endpoint refreshes it.
const (
	IssuerGoogle   = "google"
	IssuerPassword = "password"
)

type Tokens struct {
	IDToken      string
	RefreshToken string
	Expiry       time.Time
	Identity     Identity
	Issuer       string
}

// Provider is the identity provider: it issues and refreshes the identity
// token that the API accepts as bearer.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

var ErrNoIDToken = errors.New("identity provider returned no id_token")

type Google struct {
	cfg *oauth2.Config
}

func NewGoogle(clientID, clientSecret, redirectURL string) *Google {
	return &Google{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     endpoints.Google,
	}}
}

// AuthCodeURL asks for offline access so the session gets a refresh token.
func (g *Google) AuthCodeURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (g *Google) Exchange(ctx context.Context, code string) (Tokens, error) {
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return Tokens{}, err
	}
	return tokensFrom(tok)
}

func (g *Google) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	tok, err := g.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return Tokens{}, err
	}
	return tokensFrom(tok)
}

func tokensFrom(tok *oauth2.Token) (Tokens, error) {
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return Tokens{}, ErrNoIDToken
	}
	claims, err := parseClaims(idToken)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{
		IDToken:      idToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       claims.expiry,
		Identity:     claims.identity,
		Issuer:       IssuerGoogle,
	}, nil
}

type idClaims struct {
	expiry   time.Time
	identity Identity
}

// parseClaims reads the identity token without verifying its signature.
// The API verifies every token it receives; the web tier only needs the
// expiry and the display fields.
func parseClaims(idToken string) (idClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return idClaims{}, fmt.Errorf("parse id token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return idClaims{}, fmt.Errorf("id token without expiry")
	}
	sub, _ := claims.GetSubject()
	str := func(k string) string { s, _ := claims[k].(string); return s }
	return idClaims{
		expiry: exp.Time,
		identity: Identity{
			Subject: sub,
			Email:   str("email"),
			Name:    str("name"),
			Picture: str("picture"),
		},
	}, nil
}

// isAuthFailure tells a rejected refresh token apart from an unreachable
// identity provider.
func isAuthFailure(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		switch re.Response.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return true
		}
	}
	return errors.Is(err, ErrNoIDToken)
}

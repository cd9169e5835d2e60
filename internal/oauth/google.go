package oauth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tazhibayda/authcore/internal/domain"
	"github.com/tazhibayda/authcore/internal/security"
	"golang.org/x/oauth2"
	ggoogle "golang.org/x/oauth2/google"
)

var (
	ErrNoIDToken       = errors.New("oauth: no id_token in token response")
	ErrBadIssuer       = errors.New("oauth: bad iss")
	ErrBadAudience     = errors.New("oauth: bad aud")
	ErrIncomplete      = errors.New("oauth: missing email/sub")
	ErrEmailUnverified = errors.New("oauth: email not verified by provider")
)

type GoogleOAuth struct {
	cfg      *oauth2.Config
	stateKey []byte
	stateTTL time.Duration
	now      func() time.Time
}

func NewGoogle(clientID, clientSecret, redirectURI, stateSecret string) *GoogleOAuth {
	return &GoogleOAuth{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     ggoogle.Endpoint,
		},
		stateKey: []byte(stateSecret),
		stateTTL: 10 * time.Minute,
		now:      time.Now,
	}
}

// NewState returns a signed, timestamped CSRF state for one authorization
// round trip.
func (g *GoogleOAuth) NewState() (string, error) {
	nonce, err := security.NewID()
	if err != nil {
		return "", err
	}
	return g.MakeState(fmt.Sprintf("%s~%d", nonce, g.now().Unix())), nil
}

func (g *GoogleOAuth) MakeState(raw string) string {
	return raw + "." + base64.RawURLEncoding.EncodeToString(g.sign(raw))
}

// VerifyState checks the HMAC and, for states made by NewState, their age.
func (g *GoogleOAuth) VerifyState(got string) bool {
	i := strings.LastIndexByte(got, '.')
	if i <= 0 {
		return false
	}
	raw := got[:i]
	sig, err := base64.RawURLEncoding.DecodeString(got[i+1:])
	if err != nil || !hmac.Equal(g.sign(raw), sig) {
		return false
	}
	if j := strings.LastIndexByte(raw, '~'); j >= 0 {
		var ts int64
		if _, err := fmt.Sscanf(raw[j+1:], "%d", &ts); err != nil {
			return false
		}
		if g.now().Sub(time.Unix(ts, 0)) > g.stateTTL {
			return false
		}
	}
	return true
}

func (g *GoogleOAuth) sign(raw string) []byte {
	mac := hmac.New(sha256.New, g.stateKey)
	mac.Write([]byte(raw))
	return mac.Sum(nil)
}

func (g *GoogleOAuth) AuthURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades the authorization code for tokens and maps the id_token
// claims to a profile.
func (g *GoogleOAuth) Exchange(ctx context.Context, code string) (*domain.OAuthProfile, error) {
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oauth exchange: %w", err)
	}
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return nil, ErrNoIDToken
	}
	p, err := ProfileFromIDToken(raw, g.cfg.ClientID, g.now())
	if err != nil {
		return nil, err
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		p.Scope = scope
	}
	return p, nil
}

// ProfileFromIDToken reads the claims of an id_token received directly from
// Google's token endpoint over TLS, so the signature is not re-checked.
func ProfileFromIDToken(raw, audience string, now time.Time) (*domain.OAuthProfile, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("parse id_token: %w", err)
	}
	iss, _ := claims["iss"].(string)
	if iss != "https://accounts.google.com" && iss != "accounts.google.com" {
		return nil, ErrBadIssuer
	}
	aud, err := claims.GetAudience()
	if err != nil || !contains(aud, audience) {
		return nil, ErrBadAudience
	}
	if exp, err := claims.GetExpirationTime(); err != nil || exp == nil || now.After(exp.Time) {
		return nil, jwt.ErrTokenExpired
	}
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	if sub == "" || email == "" {
		return nil, ErrIncomplete
	}
	if verified, _ := claims["email_verified"].(bool); !verified {
		return nil, ErrEmailUnverified
	}
	name, _ := claims["name"].(string)
	picture, _ := claims["picture"].(string)
	return &domain.OAuthProfile{
		ProviderID: sub,
		Name:       name,
		Email:      email,
		Image:      picture,
		IDToken:    raw,
	}, nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

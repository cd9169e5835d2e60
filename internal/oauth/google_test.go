package oauth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGoogle(now time.Time) *GoogleOAuth {
	g := NewGoogle("client-1", "secret", "http://localhost/cb", "state-key")
	g.now = func() time.Time { return now }
	return g
}

func TestState(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g := newTestGoogle(now)

	st, err := g.NewState()
	require.NoError(t, err)
	assert.True(t, g.VerifyState(st))

	assert.False(t, g.VerifyState(""))
	assert.False(t, g.VerifyState("no-dot"))
	assert.False(t, g.VerifyState(st+"x"))
	assert.False(t, g.VerifyState("x"+st))

	other := NewGoogle("client-1", "secret", "http://localhost/cb", "other-key")
	assert.False(t, other.VerifyState(st))

	g.now = func() time.Time { return now.Add(11 * time.Minute) }
	assert.False(t, g.VerifyState(st), "stale state")
}

func TestAuthURL(t *testing.T) {
	g := newTestGoogle(time.Now())
	u := g.AuthURL("abc")
	assert.True(t, strings.HasPrefix(u, "https://accounts.google.com/"))
	assert.Contains(t, u, "state=abc")
	assert.Contains(t, u, "client_id=client-1")
}

func idToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("whatever"))
	require.NoError(t, err)
	return s
}

func TestProfileFromIDToken(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss":            "https://accounts.google.com",
			"aud":            "client-1",
			"sub":            "g-123",
			"email":          "ann@example.com",
			"email_verified": true,
			"name":           "Ann",
			"picture":        "https://img/ann.png",
			"exp":            now.Add(time.Hour).Unix(),
		}
	}

	raw := idToken(t, base())
	p, err := ProfileFromIDToken(raw, "client-1", now)
	require.NoError(t, err)
	assert.Equal(t, "g-123", p.ProviderID)
	assert.Equal(t, "ann@example.com", p.Email)
	assert.Equal(t, "Ann", p.Name)
	assert.Equal(t, "https://img/ann.png", p.Image)
	assert.Equal(t, raw, p.IDToken)

	cases := []struct {
		name   string
		mutate func(jwt.MapClaims)
		want   error
	}{
		{"issuer", func(c jwt.MapClaims) { c["iss"] = "https://evil" }, ErrBadIssuer},
		{"audience", func(c jwt.MapClaims) { c["aud"] = "client-2" }, ErrBadAudience},
		{"expired", func(c jwt.MapClaims) { c["exp"] = now.Add(-time.Minute).Unix() }, jwt.ErrTokenExpired},
		{"no sub", func(c jwt.MapClaims) { delete(c, "sub") }, ErrIncomplete},
		{"unverified", func(c jwt.MapClaims) { c["email_verified"] = false }, ErrEmailUnverified},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(c)
			_, err := ProfileFromIDToken(idToken(t, c), "client-1", now)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err = ProfileFromIDToken("garbage", "client-1", now)
	assert.Error(t, err)
}

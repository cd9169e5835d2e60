package security

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tazhibayda/authcore/internal/domain"
)

var (
	ErrInvalidToken   = domain.Unauthorized("invalid token")
	ErrExpiredToken   = domain.Unauthorized("token expired")
	ErrMalformedToken = domain.BadRequest("malformed token payload")
)

// Claims is the payload of every token the service signs. Subject carries a
// user id for session tokens and an email for verification tokens.
type Claims struct {
	Type domain.TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Payload is the decoded, verified content of a token.
type Payload struct {
	Subject   string
	Type      domain.TokenType
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and verifies HS256 tokens with one process-wide secret.
type Codec struct {
	secret []byte
	now    func() time.Time
}

func NewCodec(secret string, now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}
	return &Codec{secret: []byte(secret), now: now}
}

func (c *Codec) Issue(subject string, expiresAt time.Time, typ domain.TokenType) (string, error) {
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(c.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(c.secret)
}

// Verify fails with Unauthorized when the signature is wrong or the token has
// expired, and with BadRequest when a correctly signed payload lacks a subject.
func (c *Codec) Verify(token string) (*Payload, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenMalformed) && c.signatureValid(token):
		// claims failed to decode but we did sign them
		return nil, ErrMalformedToken
	default:
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrMalformedToken
	}
	p := &Payload{Subject: claims.Subject, Type: claims.Type}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

func (c *Codec) signatureValid(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	sig, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	if err != nil {
		return false
	}
	return jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, c.secret) == nil
}

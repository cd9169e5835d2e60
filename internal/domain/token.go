package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TokenType string

const (
	TokenAccess        TokenType = "access"
	TokenRefresh       TokenType = "refresh"
	TokenResetPassword TokenType = "reset-password"
	TokenVerifyEmail   TokenType = "verify-email"
	TokenMagicLink     TokenType = "magic-link"
)

// Verification reports whether t is one of the single-purpose email token types.
func (t TokenType) Verification() bool {
	switch t {
	case TokenResetPassword, TokenVerifyEmail, TokenMagicLink:
		return true
	}
	return false
}

type VerificationToken struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Token       string             `bson:"token"         json:"-"`
	Email       string             `bson:"email"         json:"email"`
	Type        TokenType          `bson:"type"          json:"type"`
	ExpiresAt   time.Time          `bson:"expires_at"    json:"expires_at"`
	Blacklisted bool               `bson:"blacklisted"   json:"blacklisted"`
	CreatedAt   time.Time          `bson:"created_at"    json:"created_at"`
}

type VerificationTokenFilter struct {
	Token       string
	Type        TokenType
	Email       string
	Blacklisted bool
}

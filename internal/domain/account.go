package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Provider is the origin of a session. The set is closed: only the values
// declared here are accepted by the core.
type Provider string

const (
	ProviderPassword  Provider = "password"
	ProviderGoogle    Provider = "google"
	ProviderMagicLink Provider = "magic-link"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderPassword, ProviderGoogle, ProviderMagicLink:
		return true
	}
	return false
}

func (p Provider) String() string { return string(p) }

// Account is one provider's session record for a user. At most one
// non-blacklisted Account exists per (UserID, Provider).
type Account struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"                 json:"id"`
	UserID            primitive.ObjectID `bson:"user_id"                       json:"user_id"`
	Provider          Provider           `bson:"provider"                      json:"provider"`
	ProviderAccountID string             `bson:"provider_account_id,omitempty" json:"provider_account_id,omitempty"`
	AccessToken       string             `bson:"access_token,omitempty"        json:"-"`
	AccessExpiresAt   time.Time          `bson:"access_expires_at,omitempty"   json:"-"`
	RefreshToken      string             `bson:"refresh_token,omitempty"       json:"-"`
	RefreshExpiresAt  time.Time          `bson:"refresh_expires_at,omitempty"  json:"-"`
	IDToken           string             `bson:"id_token,omitempty"            json:"-"`
	Scope             string             `bson:"scope,omitempty"               json:"-"`
	Blacklisted       bool               `bson:"blacklisted"                   json:"blacklisted"`
	CreatedAt         time.Time          `bson:"created_at"                    json:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at"                    json:"updated_at"`
}

// AccountFilter selects accounts. Zero-valued fields are ignored, except
// Blacklisted which is only applied when non-nil.
type AccountFilter struct {
	UserID            primitive.ObjectID
	Provider          Provider
	ProviderAccountID string
	AccessToken       string
	Blacklisted       *bool
}

// SessionTokens is the token pair written into an Account on every login.
type SessionTokens struct {
	AccessToken      string    `json:"access"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// OAuthProfile is what a provider strategy hands over after the handshake.
type OAuthProfile struct {
	ProviderID string
	Name       string
	Email      string
	Image      string
	IDToken    string
	Scope      string
}

// Bool is a small helper for optional filter fields.
func Bool(v bool) *bool { return &v }

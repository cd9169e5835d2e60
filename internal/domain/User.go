package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"            json:"id"`
	Email         string             `bson:"email"                    json:"email"`
	Name          string             `bson:"name"                     json:"name"`
	PasswordHash  string             `bson:"password_hash,omitempty"  json:"-"` // empty for oauth / magic-link users
	EmailVerified bool               `bson:"email_verified"           json:"email_verified"`
	Role          Role               `bson:"role"                     json:"role"`
	Image         string             `bson:"image,omitempty"          json:"image,omitempty"`
	Settings      map[string]any     `bson:"settings,omitempty"       json:"settings,omitempty"`
	CreatedAt     time.Time          `bson:"created_at"               json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at"               json:"updated_at"`
}

// HasPassword reports whether the user can log in with the password provider.
func (u *User) HasPassword() bool { return u != nil && u.PasswordHash != "" }

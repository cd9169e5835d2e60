package service

import "github.com/tazhibayda/authcore/internal/domain"

var (
	ErrTokenNotFound      = domain.Unauthorized("token not found")
	ErrSessionNotFound    = domain.Unauthorized("session not found")
	ErrWrongTokenType     = domain.Unauthorized("invalid token type")
	ErrInvalidCredentials = domain.Unauthorized("incorrect email or password")
	ErrEmailTaken         = domain.Conflict("email already registered")
	ErrBadSubject         = domain.BadRequest("malformed token subject")

	ErrResetFailed       = domain.Unauthorized("password reset failed")
	ErrVerifyEmailFailed = domain.Unauthorized("email verification failed")
	ErrMagicLinkFailed   = domain.Unauthorized("magic link verification failed")
)

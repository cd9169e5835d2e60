package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tazhibayda/authcore/internal/config"
	"github.com/tazhibayda/authcore/internal/domain"
	"github.com/tazhibayda/authcore/internal/helper"
	"github.com/tazhibayda/authcore/internal/security"
)

type ResetOutcome int

const (
	// ResetIssued means a token was minted and stored.
	ResetIssued ResetOutcome = iota + 1
	// ResetNoAccount means no user has the email. Callers must answer exactly
	// as for ResetIssued so account existence does not leak.
	ResetNoAccount
)

type ResetToken struct {
	Outcome ResetOutcome
	Token   string
	User    *domain.User
}

// VerificationTokens issues and checks single-purpose email tokens.
type VerificationTokens struct {
	repo  VerificationTokenRepository
	users UserRepository
	codec *security.Codec
	cfg   config.AuthConfig
	now   func() time.Time
}

func NewVerificationTokens(repo VerificationTokenRepository, users UserRepository, codec *security.Codec, cfg config.AuthConfig, now func() time.Time) *VerificationTokens {
	return &VerificationTokens{repo: repo, users: users, codec: codec, cfg: cfg, now: now}
}

func (s *VerificationTokens) GenerateResetPasswordToken(ctx context.Context, email string) (ResetToken, error) {
	u, err := s.users.FindUserByEmail(ctx, helper.NormalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return ResetToken{Outcome: ResetNoAccount}, nil
	}
	if err != nil {
		return ResetToken{}, domain.Internal("find user", err)
	}
	tok, err := s.mint(ctx, u.Email, domain.TokenResetPassword, s.cfg.ResetTTL)
	if err != nil {
		return ResetToken{}, err
	}
	return ResetToken{Outcome: ResetIssued, Token: tok, User: u}, nil
}

func (s *VerificationTokens) GenerateVerifyEmailToken(ctx context.Context, u *domain.User) (string, error) {
	return s.mint(ctx, u.Email, domain.TokenVerifyEmail, s.cfg.VerifyTTL)
}

// GenerateMagicLinkToken does not check that the email belongs to anyone:
// completing the link may create the user.
func (s *VerificationTokens) GenerateMagicLinkToken(ctx context.Context, email string) (string, error) {
	return s.mint(ctx, helper.NormalizeEmail(email), domain.TokenMagicLink, s.cfg.MagicLinkTTL)
}

func (s *VerificationTokens) mint(ctx context.Context, email string, typ domain.TokenType, ttl time.Duration) (string, error) {
	now := s.now()
	exp := now.Add(ttl)
	tok, err := s.codec.Issue(email, exp, typ)
	if err != nil {
		return "", domain.Internal("sign token", err)
	}
	rec := &domain.VerificationToken{
		Token:     tok,
		Email:     email,
		Type:      typ,
		ExpiresAt: exp,
		CreatedAt: now,
	}
	if err := s.repo.InsertVerificationToken(ctx, rec); err != nil {
		return "", domain.Internal("store token", err)
	}
	return tok, nil
}

// Verify decodes token, checks its purpose and returns the stored record.
func (s *VerificationTokens) Verify(ctx context.Context, token string, expected domain.TokenType) (*domain.VerificationToken, error) {
	p, err := s.codec.Verify(token)
	if err != nil {
		return nil, err
	}
	if p.Type != expected {
		return nil, ErrWrongTokenType
	}
	rec, err := s.repo.FindVerificationToken(ctx, domain.VerificationTokenFilter{
		Token: token,
		Type:  expected,
		Email: p.Subject,
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, domain.Internal("find token", err)
	}
	return rec, nil
}

// DeleteMany consumes every token of typ issued to email.
func (s *VerificationTokens) DeleteMany(ctx context.Context, email string, typ domain.TokenType) error {
	if _, err := s.repo.DeleteVerificationTokens(ctx, email, typ); err != nil {
		return fmt.Errorf("delete %s tokens: %w", typ, err)
	}
	return nil
}

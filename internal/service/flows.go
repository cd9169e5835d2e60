package service

import (
	"context"
	"errors"
	"strings"

	"github.com/tazhibayda/authcore/internal/domain"
	"github.com/tazhibayda/authcore/internal/helper"
	"github.com/tazhibayda/authcore/internal/metrics"
	"github.com/tazhibayda/authcore/internal/queue"
	"github.com/tazhibayda/authcore/internal/security"
	"go.uber.org/zap"
)

type ForgotPasswordOutcome string

const (
	ForgotResetSent ForgotPasswordOutcome = "reset_sent"
	// ForgotNoOp: no account for the email. The transport answers as for
	// ForgotResetSent.
	ForgotNoOp ForgotPasswordOutcome = "noop"
	// ForgotDeliveryFailed: the token was stored but the mail could not be
	// handed off. Answered as ForgotResetSent too.
	ForgotDeliveryFailed ForgotPasswordOutcome = "delivery_failed"
)

func (c *Core) ForgotPassword(ctx context.Context, email string) (ForgotPasswordOutcome, error) {
	res, err := c.tokens.GenerateResetPasswordToken(ctx, email)
	if err != nil {
		return "", err
	}
	if res.Outcome == ResetNoAccount {
		c.logger(ctx).Debug("forgot password for unknown email", zap.String("email", helper.Hash8(email)))
		return ForgotNoOp, nil
	}
	metrics.TokensIssued.WithLabelValues(string(domain.TokenResetPassword)).Inc()
	if err := c.mailer.Send(ctx, res.User.Email, domain.TokenResetPassword, res.Token); err != nil {
		// an error here would tell the caller the account exists
		c.logger(ctx).Error("send reset email", zap.String("email", helper.Hash8(res.User.Email)), zap.Error(err))
		return ForgotDeliveryFailed, nil
	}
	return ForgotResetSent, nil
}

// ResetPassword revokes every live session of the user, consumes the reset
// token and then stores the new password.
func (c *Core) ResetPassword(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return domain.BadRequest("password is required")
	}
	err := func() error {
		vt, err := c.tokens.Verify(ctx, token, domain.TokenResetPassword)
		if err != nil {
			return err
		}
		u, err := c.repo.FindUserByEmail(ctx, vt.Email)
		if err != nil {
			return err
		}
		hash, err := security.HashPassword(newPassword)
		if err != nil {
			return err
		}
		if _, err := c.sessions.InvalidateUser(ctx, u.ID); err != nil {
			return err
		}
		if err := c.tokens.DeleteMany(ctx, vt.Email, domain.TokenResetPassword); err != nil {
			return err
		}
		u.PasswordHash = hash
		u.UpdatedAt = c.now()
		return c.repo.UpdateUser(ctx, u)
	}()
	if err != nil {
		c.logger(ctx).Debug("reset password", zap.Error(err))
		return ErrResetFailed
	}
	return nil
}

// SendVerificationEmail mails a verify-email token to the caller. Already
// verified users get nothing.
func (c *Core) SendVerificationEmail(ctx context.Context, accessToken string) error {
	u, _, err := c.Authenticate(ctx, accessToken)
	if err != nil {
		return err
	}
	if u.EmailVerified {
		return nil
	}
	if err := c.sendVerification(ctx, u); err != nil {
		return domain.Internal("send verification email", err)
	}
	return nil
}

func (c *Core) sendVerification(ctx context.Context, u *domain.User) error {
	tok, err := c.tokens.GenerateVerifyEmailToken(ctx, u)
	if err != nil {
		return err
	}
	metrics.TokensIssued.WithLabelValues(string(domain.TokenVerifyEmail)).Inc()
	return c.mailer.Send(ctx, u.Email, domain.TokenVerifyEmail, tok)
}

func (c *Core) VerifyEmail(ctx context.Context, token string) (*domain.User, error) {
	var u *domain.User
	err := func() error {
		vt, err := c.tokens.Verify(ctx, token, domain.TokenVerifyEmail)
		if err != nil {
			return err
		}
		u, err = c.repo.FindUserByEmail(ctx, vt.Email)
		if err != nil {
			return err
		}
		u.EmailVerified = true
		u.UpdatedAt = c.now()
		if err := c.repo.UpdateUser(ctx, u); err != nil {
			return err
		}
		return c.tokens.DeleteMany(ctx, vt.Email, domain.TokenVerifyEmail)
	}()
	if err != nil {
		c.logger(ctx).Debug("verify email", zap.Error(err))
		return nil, ErrVerifyEmailFailed
	}
	return u, nil
}

func (c *Core) SendMagicLink(ctx context.Context, email string) error {
	email = helper.NormalizeEmail(email)
	if !helper.ValidEmail(email) {
		return domain.BadRequest("invalid email")
	}
	tok, err := c.tokens.GenerateMagicLinkToken(ctx, email)
	if err != nil {
		return err
	}
	metrics.TokensIssued.WithLabelValues(string(domain.TokenMagicLink)).Inc()
	if err := c.mailer.Send(ctx, email, domain.TokenMagicLink, tok); err != nil {
		return domain.Internal("send magic link", err)
	}
	return nil
}

// consumeMagicLink verifies a magic-link token, creating the user and its
// magic-link account on first use, and consumes the token.
func (c *Core) consumeMagicLink(ctx context.Context, token string) (*domain.User, bool, error) {
	var (
		u       *domain.User
		created bool
	)
	err := func() error {
		vt, err := c.tokens.Verify(ctx, token, domain.TokenMagicLink)
		if err != nil {
			return err
		}
		u, created, err = c.findOrCreateUser(ctx, domain.ProviderMagicLink, domain.OAuthProfile{Email: vt.Email})
		if err != nil {
			return err
		}
		if created {
			if err := c.sessions.Link(ctx, &domain.Account{
				UserID:            u.ID,
				Provider:          domain.ProviderMagicLink,
				ProviderAccountID: u.Email,
			}); err != nil {
				return err
			}
		} else if !u.EmailVerified {
			// following the link proves ownership of the address
			u.EmailVerified = true
			u.UpdatedAt = c.now()
			if err := c.repo.UpdateUser(ctx, u); err != nil {
				return err
			}
		}
		return c.tokens.DeleteMany(ctx, vt.Email, domain.TokenMagicLink)
	}()
	if err != nil {
		c.logger(ctx).Debug("magic link", zap.Error(err))
		return nil, false, ErrMagicLinkFailed
	}
	return u, created, nil
}

// resolveOAuthUser maps a provider identity to a user. A linked identity is
// authoritative: the linked user is loaded and profile data is not re-synced.
func (c *Core) resolveOAuthUser(ctx context.Context, provider domain.Provider, p domain.OAuthProfile) (*domain.User, bool, error) {
	p.Email = helper.NormalizeEmail(p.Email)
	if p.ProviderID == "" || !helper.ValidEmail(p.Email) {
		return nil, false, domain.BadRequest("incomplete provider profile")
	}

	acc, err := c.sessions.FindLink(ctx, provider, p.ProviderID)
	if err == nil {
		u, err := c.repo.FindUserByID(ctx, acc.UserID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, domain.NotFound("linked user not found")
		}
		if err != nil {
			return nil, false, domain.Internal("find user", err)
		}
		if acc.Blacklisted {
			// only revoked history is left; keep the identity attached to the
			// row the new session is written into
			if err := c.sessions.Link(ctx, &domain.Account{
				UserID: u.ID, Provider: provider, ProviderAccountID: p.ProviderID,
				IDToken: p.IDToken, Scope: p.Scope,
			}); err != nil {
				return nil, false, err
			}
		}
		return u, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, domain.Internal("find account", err)
	}

	u, created, err := c.findOrCreateUser(ctx, provider, p)
	if err != nil {
		return nil, false, err
	}
	if !created {
		changed := false
		if name := strings.TrimSpace(p.Name); name != "" && name != u.Name {
			u.Name, changed = name, true
		}
		if p.Image != "" && p.Image != u.Image {
			u.Image, changed = p.Image, true
		}
		if changed {
			u.UpdatedAt = c.now()
			if err := c.repo.UpdateUser(ctx, u); err != nil {
				return nil, false, domain.Internal("update user", err)
			}
		}
	}
	if err := c.sessions.Link(ctx, &domain.Account{
		UserID:            u.ID,
		Provider:          provider,
		ProviderAccountID: p.ProviderID,
		IDToken:           p.IDToken,
		Scope:             p.Scope,
	}); err != nil {
		return nil, false, err
	}
	return u, created, nil
}

// findOrCreateUser loads the user for p.Email or creates one from p. The
// provider has proven the address, so new users start verified. A concurrent
// creation of the same email resolves to the winner's row.
func (c *Core) findOrCreateUser(ctx context.Context, provider domain.Provider, p domain.OAuthProfile) (*domain.User, bool, error) {
	u, err := c.repo.FindUserByEmail(ctx, p.Email)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, domain.Internal("find user", err)
	}
	now := c.now()
	u = &domain.User{
		Email:         p.Email,
		Name:          strings.TrimSpace(p.Name),
		Image:         p.Image,
		EmailVerified: true,
		Role:          domain.RoleUser,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.repo.InsertUser(ctx, u); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			u, err = c.repo.FindUserByEmail(ctx, p.Email)
			if err != nil {
				return nil, false, domain.Internal("find user", err)
			}
			return u, false, nil
		}
		return nil, false, domain.Internal("create user", err)
	}
	c.publish(ctx, queue.KeyUserRegistered, queue.UserRegistered{
		UserID: u.ID.Hex(), Email: u.Email, Name: u.Name, Provider: string(provider),
	})
	return u, true, nil
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/tazhibayda/authcore/internal/config"
	"github.com/tazhibayda/authcore/internal/domain"
	"github.com/tazhibayda/authcore/internal/security"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sessions links users to providers and keeps one live token pair per
// (user, provider) in the Account rows.
type Sessions struct {
	repo  AccountRepository
	codec *security.Codec
	cfg   config.AuthConfig
	now   func() time.Time
}

func NewSessions(repo AccountRepository, codec *security.Codec, cfg config.AuthConfig, now func() time.Time) *Sessions {
	return &Sessions{repo: repo, codec: codec, cfg: cfg, now: now}
}

func (s *Sessions) GenerateAuthTokens(u *domain.User) (domain.SessionTokens, error) {
	now := s.now()
	sub := u.ID.Hex()

	accessExp := now.Add(s.cfg.AccessTTL)
	access, err := s.codec.Issue(sub, accessExp, domain.TokenAccess)
	if err != nil {
		return domain.SessionTokens{}, domain.Internal("sign access token", err)
	}
	refreshExp := now.Add(s.cfg.RefreshTTL)
	refresh, err := s.codec.Issue(sub, refreshExp, domain.TokenRefresh)
	if err != nil {
		return domain.SessionTokens{}, domain.Internal("sign refresh token", err)
	}
	return domain.SessionTokens{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// UpdateAccountTokens replaces the token pair of the live account for
// (userID, provider), inserting one when there is none. Concurrent callers
// end with a single row holding the last written pair.
func (s *Sessions) UpdateAccountTokens(ctx context.Context, userID primitive.ObjectID, provider domain.Provider, t domain.SessionTokens) (*domain.Account, error) {
	if !provider.Valid() {
		return nil, domain.BadRequest("unknown provider")
	}
	acc, err := s.repo.UpsertAccountTokens(ctx, userID, provider, t)
	if err != nil {
		return nil, domain.Internal("store session", err)
	}
	return acc, nil
}

// VerifyToken resolves an access token to its live Account row.
func (s *Sessions) VerifyToken(ctx context.Context, accessToken string) (*domain.Account, error) {
	p, err := s.codec.Verify(accessToken)
	if err != nil {
		return nil, err
	}
	if p.Type != domain.TokenAccess {
		return nil, ErrWrongTokenType
	}
	uid, err := primitive.ObjectIDFromHex(p.Subject)
	if err != nil {
		return nil, ErrBadSubject
	}
	acc, err := s.repo.FindAccount(ctx, domain.AccountFilter{
		AccessToken: accessToken,
		UserID:      uid,
		Blacklisted: domain.Bool(false),
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, domain.Internal("find session", err)
	}
	return acc, nil
}

// LogoutSession blacklists the account holding accessToken. Unknown or
// already revoked tokens are ignored.
func (s *Sessions) LogoutSession(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	acc, err := s.repo.FindAccount(ctx, domain.AccountFilter{
		AccessToken: accessToken,
		Blacklisted: domain.Bool(false),
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return domain.Internal("find session", err)
	}
	acc.Blacklisted = true
	acc.UpdatedAt = s.now()
	if err := s.repo.UpdateAccount(ctx, acc); err != nil {
		return domain.Internal("revoke session", err)
	}
	return nil
}

// InvalidateUser revokes every live session of the user.
func (s *Sessions) InvalidateUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	n, err := s.repo.BlacklistAccounts(ctx, userID)
	if err != nil {
		return 0, domain.Internal("revoke sessions", err)
	}
	return n, nil
}

// FindLink returns the account linking an external identity, preferring the
// live row over blacklisted history.
func (s *Sessions) FindLink(ctx context.Context, provider domain.Provider, providerAccountID string) (*domain.Account, error) {
	acc, err := s.repo.FindAccount(ctx, domain.AccountFilter{
		Provider:          provider,
		ProviderAccountID: providerAccountID,
		Blacklisted:       domain.Bool(false),
	})
	if errors.Is(err, domain.ErrNotFound) {
		acc, err = s.repo.FindAccount(ctx, domain.AccountFilter{
			Provider:          provider,
			ProviderAccountID: providerAccountID,
		})
	}
	return acc, err
}

// Link inserts the row tying an external identity to a user. A concurrent
// insert of the same link is not an error.
func (s *Sessions) Link(ctx context.Context, a *domain.Account) error {
	now := s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	err := s.repo.InsertAccount(ctx, a)
	if err != nil && !errors.Is(err, domain.ErrDuplicate) {
		return domain.Internal("link account", err)
	}
	return nil
}

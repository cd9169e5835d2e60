package service

import (
	"context"

	"github.com/tazhibayda/authcore/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Lookups return domain.ErrNotFound when nothing matches; inserts return
// domain.ErrDuplicate on unique-key violations.

type UserRepository interface {
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	InsertUser(ctx context.Context, u *domain.User) error
	UpdateUser(ctx context.Context, u *domain.User) error
}

type AccountRepository interface {
	FindAccount(ctx context.Context, f domain.AccountFilter) (*domain.Account, error)
	ListAccounts(ctx context.Context, userID primitive.ObjectID) ([]domain.Account, error)
	InsertAccount(ctx context.Context, a *domain.Account) error
	UpdateAccount(ctx context.Context, a *domain.Account) error
	// UpsertAccountTokens atomically writes tokens into the non-blacklisted
	// account for (userID, provider), creating it if absent.
	UpsertAccountTokens(ctx context.Context, userID primitive.ObjectID, provider domain.Provider, t domain.SessionTokens) (*domain.Account, error)
	BlacklistAccounts(ctx context.Context, userID primitive.ObjectID) (int64, error)
}

type VerificationTokenRepository interface {
	InsertVerificationToken(ctx context.Context, t *domain.VerificationToken) error
	FindVerificationToken(ctx context.Context, f domain.VerificationTokenFilter) (*domain.VerificationToken, error)
	DeleteVerificationTokens(ctx context.Context, email string, typ domain.TokenType) (int64, error)
}

type SubscriptionReader interface {
	FindSubscriptionByEmail(ctx context.Context, email string) (*domain.Subscription, error)
}

// Repository is everything the core needs from persistence.
type Repository interface {
	UserRepository
	AccountRepository
	VerificationTokenRepository
	SubscriptionReader
	Ping(ctx context.Context) error
}

// Mailer delivers a freshly minted verification token to its recipient.
type Mailer interface {
	Send(ctx context.Context, to string, typ domain.TokenType, token string) error
}

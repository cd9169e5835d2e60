package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tazhibayda/authcore/internal/domain"
)

func setupTestDB(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newUser(t *testing.T, s *Store, email string) *domain.User {
	t.Helper()
	now := time.Now().UTC()
	u := &domain.User{Email: email, Name: "N", Role: domain.RoleUser, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.InsertUser(context.Background(), u))
	return u
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	u := newUser(t, s, "alice@example.com")
	require.False(t, u.ID.IsZero())

	got, err := s.FindUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, domain.RoleUser, got.Role)
	assert.WithinDuration(t, u.CreatedAt, got.CreatedAt, time.Millisecond)

	dup := &domain.User{Email: "alice@example.com"}
	assert.ErrorIs(t, s.InsertUser(ctx, dup), domain.ErrDuplicate)

	got.EmailVerified = true
	got.Settings = map[string]any{"theme": "dark"}
	require.NoError(t, s.UpdateUser(ctx, got))
	again, err := s.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, again.EmailVerified)
	assert.Equal(t, "dark", again.Settings["theme"])

	_, err = s.FindUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	bob := newUser(t, s, "bob@example.com")
	bob.Email = "alice@example.com"
	assert.ErrorIs(t, s.UpdateUser(ctx, bob), domain.ErrDuplicate)
}

func TestUpsertAccountTokensKeepsOneLiveRow(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)
	u := newUser(t, s, "alice@example.com")

	t1 := time.Now().Add(time.Minute)
	first, err := s.UpsertAccountTokens(ctx, u.ID, domain.ProviderPassword, domain.SessionTokens{
		AccessToken: "a1", AccessExpiresAt: t1, RefreshToken: "r1", RefreshExpiresAt: t1,
	})
	require.NoError(t, err)

	second, err := s.UpsertAccountTokens(ctx, u.ID, domain.ProviderPassword, domain.SessionTokens{
		AccessToken: "a2", AccessExpiresAt: t1, RefreshToken: "r2", RefreshExpiresAt: t1,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "a2", second.AccessToken)
	assert.Equal(t, "r2", second.RefreshToken)

	accs, err := s.ListAccounts(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, accs, 1)

	n, err := s.BlacklistAccounts(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	third, err := s.UpsertAccountTokens(ctx, u.ID, domain.ProviderPassword, domain.SessionTokens{AccessToken: "a3"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)

	live, err := s.FindAccount(ctx, domain.AccountFilter{AccessToken: "a3", Blacklisted: domain.Bool(false)})
	require.NoError(t, err)
	assert.Equal(t, third.ID, live.ID)

	_, err = s.FindAccount(ctx, domain.AccountFilter{AccessToken: "a2", Blacklisted: domain.Bool(false)})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	accs, err = s.ListAccounts(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, accs, 2)
}

func TestProviderIdentityIsUnique(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)
	alice := newUser(t, s, "alice@example.com")
	bob := newUser(t, s, "bob@example.com")

	require.NoError(t, s.InsertAccount(ctx, &domain.Account{
		UserID: alice.ID, Provider: domain.ProviderGoogle, ProviderAccountID: "g-1",
	}))
	err := s.InsertAccount(ctx, &domain.Account{
		UserID: bob.ID, Provider: domain.ProviderGoogle, ProviderAccountID: "g-1",
	})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	// blacklisted history does not block a new live link
	acc, err := s.FindAccount(ctx, domain.AccountFilter{Provider: domain.ProviderGoogle, ProviderAccountID: "g-1"})
	require.NoError(t, err)
	acc.Blacklisted = true
	require.NoError(t, s.UpdateAccount(ctx, acc))
	require.NoError(t, s.InsertAccount(ctx, &domain.Account{
		UserID: bob.ID, Provider: domain.ProviderGoogle, ProviderAccountID: "g-1",
	}))
}

func TestVerificationTokens(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)
	now := time.Now().UTC()

	for _, tok := range []string{"t1", "t2"} {
		require.NoError(t, s.InsertVerificationToken(ctx, &domain.VerificationToken{
			Token: tok, Email: "a@example.com", Type: domain.TokenMagicLink,
			ExpiresAt: now.Add(time.Minute), CreatedAt: now,
		}))
	}
	require.NoError(t, s.InsertVerificationToken(ctx, &domain.VerificationToken{
		Token: "old", Email: "a@example.com", Type: domain.TokenResetPassword,
		ExpiresAt: now.Add(-time.Minute), CreatedAt: now,
	}))
	assert.ErrorIs(t, s.InsertVerificationToken(ctx, &domain.VerificationToken{
		Token: "t1", Email: "b@example.com", Type: domain.TokenMagicLink, ExpiresAt: now, CreatedAt: now,
	}), domain.ErrDuplicate)

	got, err := s.FindVerificationToken(ctx, domain.VerificationTokenFilter{
		Token: "t1", Type: domain.TokenMagicLink, Email: "a@example.com",
	})
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(time.Minute), got.ExpiresAt, time.Millisecond)

	_, err = s.FindVerificationToken(ctx, domain.VerificationTokenFilter{
		Token: "t1", Type: domain.TokenVerifyEmail, Email: "a@example.com",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, err := s.DeleteVerificationTokens(ctx, "a@example.com", domain.TokenMagicLink)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.PurgeExpiredTokens(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestSubscriptionLatestWins(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)
	now := time.Now().UTC()
	ends := now.Add(24 * time.Hour)

	require.NoError(t, s.SaveSubscription(ctx, domain.Subscription{
		ID: "sub_old", Email: "a@example.com", Status: domain.SubscriptionExpired, UpdatedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, s.SaveSubscription(ctx, domain.Subscription{
		ID: "sub_new", Email: "a@example.com", Status: domain.SubscriptionCancelled, EndsAt: &ends, UpdatedAt: now,
	}))

	sub, err := s.FindSubscriptionByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "sub_new", sub.ID)
	assert.Equal(t, domain.SubscriptionCancelled, sub.Status)
	require.NotNil(t, sub.EndsAt)
	assert.WithinDuration(t, ends, *sub.EndsAt, time.Millisecond)

	_, err = s.FindSubscriptionByEmail(ctx, "b@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

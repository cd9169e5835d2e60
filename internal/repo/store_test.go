package repo_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tazhibayda/authcore/internal/domain"
	"github.com/tazhibayda/authcore/internal/repo"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func newMongoStore(t *testing.T) *repo.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("mongo container tests are skipped in -short mode")
	}
	ctx := context.Background()

	mc, err := mongodb.Run(ctx, "mongo:6")
	testcontainers.CleanupContainer(t, mc)
	if err != nil {
		t.Skipf("mongo container unavailable: %v", err)
	}

	uri, err := mc.ConnectionString(ctx)
	require.NoError(t, err)

	store, err := repo.NewStore(ctx, uri, "auth_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	require.NoError(t, store.EnsureIndexes(ctx))
	return store
}

func TestMongoStore(t *testing.T) {
	store := newMongoStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	u := &domain.User{Email: "alice@example.com", Role: domain.RoleUser, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertUser(ctx, u))
	assert.ErrorIs(t, store.InsertUser(ctx, &domain.User{Email: "alice@example.com"}), domain.ErrDuplicate)

	got, err := store.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	t.Run("upsert keeps one live row", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.UpsertAccountTokens(ctx, u.ID, domain.ProviderPassword, domain.SessionTokens{
					AccessToken: "a", RefreshToken: "r",
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		last, err := store.UpsertAccountTokens(ctx, u.ID, domain.ProviderPassword, domain.SessionTokens{
			AccessToken: "a-last", RefreshToken: "r-last",
		})
		require.NoError(t, err)
		assert.Equal(t, "a-last", last.AccessToken)

		accs, err := store.ListAccounts(ctx, u.ID)
		require.NoError(t, err)
		assert.Len(t, accs, 1)
	})

	t.Run("blacklist then relogin", func(t *testing.T) {
		n, err := store.BlacklistAccounts(ctx, u.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		acc, err := store.UpsertAccountTokens(ctx, u.ID, domain.ProviderPassword, domain.SessionTokens{AccessToken: "a-new"})
		require.NoError(t, err)
		assert.False(t, acc.Blacklisted)

		_, err = store.FindAccount(ctx, domain.AccountFilter{AccessToken: "a-last", Blacklisted: domain.Bool(false)})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("verification tokens", func(t *testing.T) {
		vt := &domain.VerificationToken{
			Token: "tok", Email: u.Email, Type: domain.TokenVerifyEmail,
			ExpiresAt: now.Add(time.Hour), CreatedAt: now,
		}
		require.NoError(t, store.InsertVerificationToken(ctx, vt))
		found, err := store.FindVerificationToken(ctx, domain.VerificationTokenFilter{
			Token: "tok", Type: domain.TokenVerifyEmail, Email: u.Email,
		})
		require.NoError(t, err)
		assert.Equal(t, vt.ID, found.ID)

		n, err := store.DeleteVerificationTokens(ctx, u.Email, domain.TokenVerifyEmail)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("subscription", func(t *testing.T) {
		require.NoError(t, store.SaveSubscription(ctx, domain.Subscription{
			ID: "sub_1", Email: u.Email, Status: domain.SubscriptionActive, UpdatedAt: now,
		}))
		sub, err := store.FindSubscriptionByEmail(ctx, u.Email)
		require.NoError(t, err)
		assert.Equal(t, "sub_1", sub.ID)
	})
}

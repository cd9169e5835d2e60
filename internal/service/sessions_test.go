package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tazhibayda/authcore/internal/domain"
	"github.com/tazhibayda/authcore/internal/security"
	"github.com/tazhibayda/authcore/internal/service"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestUpdateAccountTokensIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sessions := env.Core.Sessions()
	uid := primitive.NewObjectID()

	t1 := domain.SessionTokens{AccessToken: "a1", RefreshToken: "r1"}
	t2 := domain.SessionTokens{AccessToken: "a2", RefreshToken: "r2"}

	first, err := sessions.UpdateAccountTokens(ctx, uid, domain.ProviderPassword, t1)
	require.NoError(t, err)
	second, err := sessions.UpdateAccountTokens(ctx, uid, domain.ProviderPassword, t2)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	accs, err := env.Store.ListAccounts(ctx, uid)
	require.NoError(t, err)
	require.Len(t, accs, 1)
	assert.Equal(t, "a2", accs[0].AccessToken)
	assert.Equal(t, "r2", accs[0].RefreshToken)

	_, err = sessions.UpdateAccountTokens(ctx, uid, domain.Provider("github"), t1)
	requireKind(t, err, domain.KindBadRequest)
}

func TestConcurrentUpdateAccountTokens(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	uid := primitive.NewObjectID()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Core.Sessions().UpdateAccountTokens(ctx, uid, domain.ProviderGoogle, domain.SessionTokens{AccessToken: "a"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	accs, err := env.Store.ListAccounts(ctx, uid)
	require.NoError(t, err)
	assert.Len(t, accs, 1)
}

func TestVerifyToken(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	s := env.register(t, "ann@example.com", "password-1")

	acc, err := env.Core.Sessions().VerifyToken(ctx, s.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, acc.UserID)
	assert.Equal(t, domain.ProviderPassword, acc.Provider)

	// a refresh token is not an access token
	_, err = env.Core.Sessions().VerifyToken(ctx, s.Tokens.RefreshToken)
	assert.ErrorIs(t, err, service.ErrWrongTokenType)

	// signed but superseded by a later login
	_, err = env.Core.Login(ctx, "ann@example.com", "password-1")
	require.NoError(t, err)
	_, err = env.Core.Sessions().VerifyToken(ctx, s.Tokens.AccessToken)
	assert.ErrorIs(t, err, service.ErrSessionNotFound)

	// a subject that is not an object id
	codec := security.NewCodec(testAuthConfig.Secret, env.Clock.Now)
	odd, err := codec.Issue("not-an-id", env.Clock.Now().Add(time.Minute), domain.TokenAccess)
	require.NoError(t, err)
	_, err = env.Core.Sessions().VerifyToken(ctx, odd)
	requireKind(t, err, domain.KindBadRequest)
}

func TestAccessTokenExpiry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	s := env.register(t, "ann@example.com", "password-1")

	env.Clock.Advance(testAuthConfig.AccessTTL - time.Second)
	_, err := env.Core.Sessions().VerifyToken(ctx, s.Tokens.AccessToken)
	require.NoError(t, err)

	env.Clock.Advance(2 * time.Second)
	_, err = env.Core.Sessions().VerifyToken(ctx, s.Tokens.AccessToken)
	assert.ErrorIs(t, err, security.ErrExpiredToken)
}

func TestLogoutBlacklistsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	s := env.register(t, "ann@example.com", "password-1")

	require.NoError(t, env.Core.Logout(ctx, s.Tokens.AccessToken))
	_, err := env.Core.Sessions().VerifyToken(ctx, s.Tokens.AccessToken)
	assert.ErrorIs(t, err, service.ErrSessionNotFound)

	require.NoError(t, env.Core.Logout(ctx, s.Tokens.AccessToken))
	require.NoError(t, env.Core.Logout(ctx, "garbage"))

	// a new login opens a new live row next to the revoked one
	again, err := env.Core.Login(ctx, "ann@example.com", "password-1")
	require.NoError(t, err)
	_, err = env.Core.Sessions().VerifyToken(ctx, again.Tokens.AccessToken)
	require.NoError(t, err)

	accs, err := env.Store.ListAccounts(ctx, s.User.ID)
	require.NoError(t, err)
	require.Len(t, accs, 2)
	live := 0
	for _, a := range accs {
		if !a.Blacklisted {
			live++
		}
	}
	assert.Equal(t, 1, live)
}

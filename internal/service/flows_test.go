package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tazhibayda/authcore/internal/domain"
	"github.com/tazhibayda/authcore/internal/queue"
	"github.com/tazhibayda/authcore/internal/repo/memstore"
	"github.com/tazhibayda/authcore/internal/service"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestForgotPassword(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.register(t, "ann@example.com", "password-1")
	before := env.Mail.count()

	out, err := env.Core.ForgotPassword(ctx, "ghost@example.com")
	require.NoError(t, err)
	assert.Equal(t, service.ForgotNoOp, out)
	assert.Equal(t, before, env.Mail.count(), "nothing is mailed for unknown addresses")

	out, err = env.Core.ForgotPassword(ctx, "Ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, service.ForgotResetSent, out)
	assert.NotEmpty(t, env.Mail.last(t, "ann@example.com", domain.TokenResetPassword))
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	s := env.register(t, "ann@example.com", "password-1")

	_, err := env.Core.ForgotPassword(ctx, "ann@example.com")
	require.NoError(t, err)
	tok := env.Mail.last(t, "ann@example.com", domain.TokenResetPassword)

	requireKind(t, env.Core.ResetPassword(ctx, tok, ""), domain.KindBadRequest)
	require.NoError(t, env.Core.ResetPassword(ctx, tok, "password-2"))

	// every live session was revoked
	_, _, err = env.Core.Authenticate(ctx, s.Tokens.AccessToken)
	assert.ErrorIs(t, err, service.ErrSessionNotFound)

	_, err = env.Core.Login(ctx, "ann@example.com", "password-2")
	require.NoError(t, err)

	// single use
	assert.ErrorIs(t, env.Core.ResetPassword(ctx, tok, "password-3"), service.ErrResetFailed)
	// garbage and wrong-type tokens get the same generic answer
	assert.ErrorIs(t, env.Core.ResetPassword(ctx, "garbage", "password-3"), service.ErrResetFailed)
	verify := env.Mail.last(t, "ann@example.com", domain.TokenVerifyEmail)
	assert.ErrorIs(t, env.Core.ResetPassword(ctx, verify, "password-3"), service.ErrResetFailed)
}

func TestVerifyEmail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	s := env.register(t, "ann@example.com", "password-1")
	tok := env.Mail.last(t, "ann@example.com", domain.TokenVerifyEmail)

	u, err := env.Core.VerifyEmail(ctx, tok)
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)

	_, err = env.Core.VerifyEmail(ctx, tok)
	assert.ErrorIs(t, err, service.ErrVerifyEmailFailed)
	requireKind(t, err, domain.KindUnauthorized)

	// verified users are not mailed again
	before := env.Mail.count()
	require.NoError(t, env.Core.SendVerificationEmail(ctx, s.Tokens.AccessToken))
	assert.Equal(t, before, env.Mail.count())
}

func TestSendVerificationEmail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	s := env.register(t, "ann@example.com", "password-1")
	before := env.Mail.count()

	require.NoError(t, env.Core.SendVerificationEmail(ctx, s.Tokens.AccessToken))
	assert.Equal(t, before+1, env.Mail.count())

	requireKind(t, env.Core.SendVerificationEmail(ctx, "nope"), domain.KindUnauthorized)
}

func TestMagicLinkCreatesUserOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	require.NoError(t, env.Core.SendMagicLink(ctx, "New@Example.com"))
	tok := env.Mail.last(t, "new@example.com", domain.TokenMagicLink)

	s, err := env.Core.VerifyMagicLink(ctx, tok)
	require.NoError(t, err)
	assert.True(t, s.NewUser)
	assert.Equal(t, domain.ProviderMagicLink, s.Provider)
	assert.True(t, s.User.EmailVerified)
	assert.False(t, s.User.HasPassword())

	users, accounts := env.Store.Counts()
	assert.Equal(t, 1, users)
	assert.Equal(t, 1, accounts)

	acc, err := env.Store.FindAccount(ctx, domain.AccountFilter{UserID: s.User.ID, Provider: domain.ProviderMagicLink})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", acc.ProviderAccountID)
	assert.Equal(t, s.Tokens.AccessToken, acc.AccessToken)

	_, err = env.Core.VerifyMagicLink(ctx, tok)
	assert.ErrorIs(t, err, service.ErrMagicLinkFailed)

	// second link for the same address signs in the existing user
	require.NoError(t, env.Core.SendMagicLink(ctx, "new@example.com"))
	again, err := env.Core.VerifyMagicLink(ctx, env.Mail.last(t, "new@example.com", domain.TokenMagicLink))
	require.NoError(t, err)
	assert.False(t, again.NewUser)
	assert.Equal(t, s.User.ID, again.User.ID)
	users, accounts = env.Store.Counts()
	assert.Equal(t, 1, users)
	assert.Equal(t, 1, accounts)
}

func TestMagicLinkVerifiesExistingUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	reg := env.register(t, "ann@example.com", "password-1")
	require.False(t, reg.User.EmailVerified)

	require.NoError(t, env.Core.SendMagicLink(ctx, "ann@example.com"))
	s, err := env.Core.VerifyMagicLink(ctx, env.Mail.last(t, "ann@example.com", domain.TokenMagicLink))
	require.NoError(t, err)
	assert.False(t, s.NewUser)
	assert.Equal(t, reg.User.ID, s.User.ID)
	assert.True(t, s.User.EmailVerified)
}

func TestMagicLinkRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	requireKind(t, env.Core.SendMagicLink(ctx, "not-an-email"), domain.KindBadRequest)

	_, err := env.Core.VerifyMagicLink(ctx, "garbage")
	assert.ErrorIs(t, err, service.ErrMagicLinkFailed)
}

func googleProfile() domain.OAuthProfile {
	return domain.OAuthProfile{
		ProviderID: "g-123",
		Email:      "ann@example.com",
		Name:       "Ann",
		Image:      "https://img/ann.png",
		IDToken:    "id-token",
		Scope:      "openid email profile",
	}
}

func TestCompleteOAuth(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	first, err := env.Core.CompleteOAuth(ctx, googleProfile())
	require.NoError(t, err)
	assert.True(t, first.NewUser)
	assert.True(t, first.User.EmailVerified)
	assert.Equal(t, domain.ProviderGoogle, first.Provider)

	// the provider changed the display name; linked identities are not re-synced
	p := googleProfile()
	p.Name = "Someone Else"
	second, err := env.Core.CompleteOAuth(ctx, p)
	require.NoError(t, err)
	assert.False(t, second.NewUser)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Equal(t, "Ann", second.User.Name)

	users, accounts := env.Store.Counts()
	assert.Equal(t, 1, users)
	assert.Equal(t, 1, accounts)

	acc, err := env.Store.FindAccount(ctx, domain.AccountFilter{Provider: domain.ProviderGoogle, ProviderAccountID: "g-123"})
	require.NoError(t, err)
	assert.Equal(t, "id-token", acc.IDToken)
	assert.Equal(t, second.Tokens.AccessToken, acc.AccessToken)
}

func TestCompleteOAuthLinksExistingEmail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	reg := env.register(t, "ann@example.com", "password-1")

	s, err := env.Core.CompleteOAuth(ctx, googleProfile())
	require.NoError(t, err)
	assert.False(t, s.NewUser)
	assert.Equal(t, reg.User.ID, s.User.ID)
	assert.Equal(t, "https://img/ann.png", s.User.Image)

	v, err := env.Core.GetAccount(ctx, s.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []domain.Provider{domain.ProviderGoogle, domain.ProviderPassword}, v.Providers)
}

func TestCompleteOAuthAfterLogout(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	s, err := env.Core.CompleteOAuth(ctx, googleProfile())
	require.NoError(t, err)
	require.NoError(t, env.Core.Logout(ctx, s.Tokens.AccessToken))

	again, err := env.Core.CompleteOAuth(ctx, googleProfile())
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, again.User.ID)

	live, err := env.Store.FindAccount(ctx, domain.AccountFilter{
		Provider: domain.ProviderGoogle, ProviderAccountID: "g-123", Blacklisted: domain.Bool(false),
	})
	require.NoError(t, err)
	assert.Equal(t, again.Tokens.AccessToken, live.AccessToken)

	_, accounts := env.Store.Counts()
	assert.Equal(t, 2, accounts)
}

func TestCompleteOAuthRejectsIncompleteProfile(t *testing.T) {
	env := newTestEnv(t)
	p := googleProfile()
	p.ProviderID = ""
	_, err := env.Core.CompleteOAuth(context.Background(), p)
	requireKind(t, err, domain.KindBadRequest)
}

func TestConcurrentOAuthCreatesOneUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Core.CompleteOAuth(ctx, googleProfile())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	users, accounts := env.Store.Counts()
	assert.Equal(t, 1, users)
	assert.Equal(t, 1, accounts)

	registered := 0
	for _, k := range env.Events.keys() {
		if k == queue.KeyUserRegistered {
			registered++
		}
	}
	assert.Equal(t, 1, registered)
}

func TestForgotPasswordHidesDeliveryFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.register(t, "ann@example.com", "password-1")
	env.Mail.failWith(errors.New("broker down"))

	known, knownErr := env.Core.ForgotPassword(ctx, "ann@example.com")
	unknown, unknownErr := env.Core.ForgotPassword(ctx, "ghost@example.com")

	require.NoError(t, knownErr)
	require.NoError(t, unknownErr)
	assert.Equal(t, service.ForgotDeliveryFailed, known)
	assert.Equal(t, service.ForgotNoOp, unknown)
}

// revokeFailingStore fails session revocation and records password writes.
type revokeFailingStore struct {
	*memstore.Store
	userUpdates int
}

func (s *revokeFailingStore) BlacklistAccounts(ctx context.Context, id primitive.ObjectID) (int64, error) {
	return 0, errors.New("db down")
}

func (s *revokeFailingStore) UpdateUser(ctx context.Context, u *domain.User) error {
	s.userUpdates++
	return s.Store.UpdateUser(ctx, u)
}

func TestResetPasswordKeepsOldPasswordWhenRevokeFails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	store := &revokeFailingStore{Store: env.Store}
	core := service.New(testAuthConfig, service.Deps{Repo: store, Mailer: env.Mail, Now: env.Clock.Now})

	_, err := core.Register(ctx, service.RegisterInput{Email: "ann@example.com", Password: "password-1"})
	require.NoError(t, err)
	_, err = core.ForgotPassword(ctx, "ann@example.com")
	require.NoError(t, err)
	tok := env.Mail.last(t, "ann@example.com", domain.TokenResetPassword)
	store.userUpdates = 0

	assert.ErrorIs(t, core.ResetPassword(ctx, tok, "password-2"), service.ErrResetFailed)
	assert.Zero(t, store.userUpdates)

	_, err = core.Login(ctx, "ann@example.com", "password-1")
	assert.NoError(t, err)
	// the token was not consumed either
	_, err = core.Tokens().Verify(ctx, tok, domain.TokenResetPassword)
	assert.NoError(t, err)
}

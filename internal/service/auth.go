package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/tazhibayda/authcore/internal/config"
	"github.com/tazhibayda/authcore/internal/domain"
	"github.com/tazhibayda/authcore/internal/helper"
	applog "github.com/tazhibayda/authcore/internal/log"
	"github.com/tazhibayda/authcore/internal/metrics"
	"github.com/tazhibayda/authcore/internal/queue"
	"github.com/tazhibayda/authcore/internal/security"
	"go.uber.org/zap"
)

// Session is what every successful login returns to the transport layer.
type Session struct {
	User     *domain.User         `json:"user"`
	Tokens   domain.SessionTokens `json:"tokens"`
	Provider domain.Provider      `json:"provider"`
	NewUser  bool                 `json:"new_user"`
}

type Deps struct {
	Repo     Repository
	Mailer   Mailer
	Events   queue.Publisher
	Exchange string
	Logger   *zap.Logger
	Now      func() time.Time
}

// Core composes token issuance, account linking and entitlement into the
// register / login / logout / profile flows.
type Core struct {
	repo         Repository
	codec        *security.Codec
	tokens       *VerificationTokens
	sessions     *Sessions
	entitlements *Entitlements
	mailer       Mailer
	events       queue.Publisher
	exchange     string
	log          *zap.Logger
	now          func() time.Time
}

func New(cfg config.AuthConfig, d Deps) *Core {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	lg := d.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	ev := d.Events
	if ev == nil {
		ev = queue.NewNoop()
	}
	codec := security.NewCodec(cfg.Secret, now)
	return &Core{
		repo:         d.Repo,
		codec:        codec,
		tokens:       NewVerificationTokens(d.Repo, d.Repo, codec, cfg, now),
		sessions:     NewSessions(d.Repo, codec, cfg, now),
		entitlements: NewEntitlements(d.Repo, now),
		mailer:       d.Mailer,
		events:       ev,
		exchange:     d.Exchange,
		log:          lg,
		now:          now,
	}
}

func (c *Core) Tokens() *VerificationTokens  { return c.tokens }
func (c *Core) Sessions() *Sessions          { return c.sessions }
func (c *Core) Entitlements() *Entitlements  { return c.entitlements }
func (c *Core) Ping(ctx context.Context) error { return c.repo.Ping(ctx) }

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// Register creates a password user, sends the verify-email message and
// opens a password session.
func (c *Core) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := helper.NormalizeEmail(in.Email)
	if !helper.ValidEmail(email) {
		return nil, domain.BadRequest("invalid email")
	}
	if in.Password == "" {
		return nil, domain.BadRequest("password is required")
	}
	if _, err := c.repo.FindUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Internal("find user", err)
	}

	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, domain.Internal("hash password", err)
	}
	now := c.now()
	u := &domain.User{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.repo.InsertUser(ctx, u); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, domain.Internal("create user", err)
	}
	c.publish(ctx, queue.KeyUserRegistered, queue.UserRegistered{
		UserID: u.ID.Hex(), Email: u.Email, Name: u.Name, Provider: string(domain.ProviderPassword),
	})

	// the account exists either way; a lost email can be re-requested
	if err := c.sendVerification(ctx, u); err != nil {
		c.logger(ctx).Warn("send verification email", zap.String("email", helper.Hash8(u.Email)), zap.Error(err))
	}

	s, err := c.issueSession(ctx, u, domain.ProviderPassword)
	if err != nil {
		return nil, err
	}
	s.NewUser = true
	return s, nil
}

func (c *Core) Login(ctx context.Context, email, password string) (*Session, error) {
	return c.CompleteLogin(ctx, PasswordCredentials{Email: email, Password: password})
}

func (c *Core) CompleteOAuth(ctx context.Context, p domain.OAuthProfile) (*Session, error) {
	return c.CompleteLogin(ctx, GoogleCredentials{Profile: p})
}

func (c *Core) VerifyMagicLink(ctx context.Context, token string) (*Session, error) {
	return c.CompleteLogin(ctx, MagicLinkCredentials{Token: token})
}

// CompleteLogin authenticates creds with their provider, then issues and
// stores a fresh token pair for that provider.
func (c *Core) CompleteLogin(ctx context.Context, creds Credentials) (*Session, error) {
	var (
		u       *domain.User
		created bool
		err     error
	)
	switch cr := creds.(type) {
	case PasswordCredentials:
		u, err = c.authenticatePassword(ctx, cr)
	case GoogleCredentials:
		u, created, err = c.resolveOAuthUser(ctx, cr.Provider(), cr.Profile)
	case MagicLinkCredentials:
		u, created, err = c.consumeMagicLink(ctx, cr.Token)
	default:
		err = domain.BadRequest("unsupported provider")
	}
	provider := domain.Provider("unknown")
	if creds != nil {
		provider = creds.Provider()
	}
	if err != nil {
		metrics.Logins.WithLabelValues(string(provider), "failure").Inc()
		return nil, err
	}

	s, err := c.issueSession(ctx, u, provider)
	if err != nil {
		metrics.Logins.WithLabelValues(string(provider), "failure").Inc()
		return nil, err
	}
	metrics.Logins.WithLabelValues(string(provider), "success").Inc()
	s.NewUser = created
	return s, nil
}

var burnPasswordCheck = security.BurnPasswordCheck

func (c *Core) authenticatePassword(ctx context.Context, cr PasswordCredentials) (*domain.User, error) {
	u, err := c.repo.FindUserByEmail(ctx, helper.NormalizeEmail(cr.Email))
	if errors.Is(err, domain.ErrNotFound) {
		burnPasswordCheck(cr.Password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, domain.Internal("find user", err)
	}
	if !u.HasPassword() {
		// OAuth and magic-link users pay the same bcrypt cost as everyone else
		burnPasswordCheck(cr.Password)
		return nil, ErrInvalidCredentials
	}
	if !security.CheckPassword(u.PasswordHash, cr.Password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (c *Core) issueSession(ctx context.Context, u *domain.User, provider domain.Provider) (*Session, error) {
	t, err := c.sessions.GenerateAuthTokens(u)
	if err != nil {
		return nil, err
	}
	if _, err := c.sessions.UpdateAccountTokens(ctx, u.ID, provider, t); err != nil {
		return nil, err
	}
	metrics.TokensIssued.WithLabelValues(string(domain.TokenAccess)).Inc()
	metrics.TokensIssued.WithLabelValues(string(domain.TokenRefresh)).Inc()
	c.publish(ctx, queue.KeyUserLoggedIn, queue.UserLoggedIn{
		UserID: u.ID.Hex(), Email: u.Email, Provider: string(provider),
	})
	return &Session{User: u, Tokens: t, Provider: provider}, nil
}

// Logout revokes the session behind accessToken.
func (c *Core) Logout(ctx context.Context, accessToken string) error {
	return c.sessions.LogoutSession(ctx, accessToken)
}

// AccountView is the user projection returned to authenticated callers.
type AccountView struct {
	ID             string            `json:"id"`
	Email          string            `json:"email"`
	Name           string            `json:"name"`
	Image          string            `json:"image,omitempty"`
	Role           domain.Role       `json:"role"`
	EmailVerified  bool              `json:"email_verified"`
	HasPassword    bool              `json:"has_password"`
	Settings       map[string]any    `json:"settings,omitempty"`
	Providers      []domain.Provider `json:"providers"`
	IsPro          bool              `json:"is_pro"`
	SubscriptionID *string           `json:"subscription_id"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Authenticate re-derives the caller from an access token on every request.
func (c *Core) Authenticate(ctx context.Context, accessToken string) (*domain.User, *domain.Account, error) {
	acc, err := c.sessions.VerifyToken(ctx, accessToken)
	if err != nil {
		return nil, nil, err
	}
	u, err := c.repo.FindUserByID(ctx, acc.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, domain.NotFound("user not found")
	}
	if err != nil {
		return nil, nil, domain.Internal("find user", err)
	}
	return u, acc, nil
}

func (c *Core) GetAccount(ctx context.Context, accessToken string) (*AccountView, error) {
	u, _, err := c.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return c.view(ctx, u)
}

func (c *Core) view(ctx context.Context, u *domain.User) (*AccountView, error) {
	ent, err := c.entitlements.CheckSubscription(ctx, u.Email)
	if err != nil {
		return nil, err
	}
	accs, err := c.repo.ListAccounts(ctx, u.ID)
	if err != nil {
		return nil, domain.Internal("list accounts", err)
	}
	seen := map[domain.Provider]bool{}
	providers := []domain.Provider{}
	for _, a := range accs {
		if !seen[a.Provider] {
			seen[a.Provider] = true
			providers = append(providers, a.Provider)
		}
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })

	return &AccountView{
		ID:             u.ID.Hex(),
		Email:          u.Email,
		Name:           u.Name,
		Image:          u.Image,
		Role:           u.Role,
		EmailVerified:  u.EmailVerified,
		HasPassword:    u.HasPassword(),
		Settings:       u.Settings,
		Providers:      providers,
		IsPro:          ent.IsPro,
		SubscriptionID: ent.SubscriptionID,
		CreatedAt:      u.CreatedAt,
	}, nil
}

// ProfileUpdate carries the fields a user may change. Nil means unchanged.
type ProfileUpdate struct {
	Name     *string
	Image    *string
	Email    *string
	Settings map[string]any
}

func (c *Core) UpdateProfile(ctx context.Context, accessToken string, in ProfileUpdate) (*AccountView, error) {
	u, _, err := c.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		u.Name = strings.TrimSpace(*in.Name)
	}
	if in.Image != nil {
		u.Image = strings.TrimSpace(*in.Image)
	}
	if in.Settings != nil {
		u.Settings = in.Settings
	}
	if in.Email != nil {
		email := helper.NormalizeEmail(*in.Email)
		if !helper.ValidEmail(email) {
			return nil, domain.BadRequest("invalid email")
		}
		if email != u.Email {
			if other, err := c.repo.FindUserByEmail(ctx, email); err == nil && other.ID != u.ID {
				return nil, ErrEmailTaken
			} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return nil, domain.Internal("find user", err)
			}
			u.Email = email
			u.EmailVerified = false
		}
	}
	u.UpdatedAt = c.now()
	if err := c.repo.UpdateUser(ctx, u); err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicate):
			return nil, ErrEmailTaken
		case errors.Is(err, domain.ErrNotFound):
			return nil, domain.NotFound("user not found")
		}
		return nil, domain.Internal("update user", err)
	}
	return c.view(ctx, u)
}

// ChangePassword sets a new password. Users without a password (OAuth or
// magic-link only) may set one without supplying the current one.
func (c *Core) ChangePassword(ctx context.Context, accessToken, current, next string) error {
	if next == "" {
		return domain.BadRequest("password is required")
	}
	u, _, err := c.Authenticate(ctx, accessToken)
	if err != nil {
		return err
	}
	if u.HasPassword() && !security.CheckPassword(u.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	hash, err := security.HashPassword(next)
	if err != nil {
		return domain.Internal("hash password", err)
	}
	u.PasswordHash = hash
	u.UpdatedAt = c.now()
	if err := c.repo.UpdateUser(ctx, u); err != nil {
		return domain.Internal("update user", err)
	}
	return nil
}

func (c *Core) logger(ctx context.Context) *zap.Logger { return applog.WithDD(ctx, c.log) }

func (c *Core) publish(ctx context.Context, key string, ev any) {
	if err := c.events.Publish(ctx, c.exchange, key, ev, queue.RequestID(ctx)); err != nil {
		c.logger(ctx).Warn("publish event", zap.String("key", key), zap.Error(err))
	}
}

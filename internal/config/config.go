package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port            string
	Env             string
	LogLevel        string
	StoreDriver     string // mongo | sqlite | memory
	MongoURI        string
	MongoDB         string
	SQLitePath      string
	JWTSecret       string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	ResetTTL        time.Duration
	VerifyTTL       time.Duration
	MagicLinkTTL    time.Duration
	RedisAddr       string
	RateLimitPerMin int
	RabbitURL       string
	RabbitExchange  string
	RabbitQueue     string
	NotifyWorkers   int
	GoogleClientID  string
	GoogleSecret    string
	GoogleRedirect  string
	OAuthStateKey   string
	BaseURL         string
	CookieName      string
	CookieDomain    string
	DDService       string
	DDEnabled       bool
}

// AuthConfig is the slice of configuration the auth core needs. It is passed
// explicitly to service.New.
type AuthConfig struct {
	Secret       string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	ResetTTL     time.Duration
	VerifyTTL    time.Duration
	MagicLinkTTL time.Duration
}

func Load() Config {
	return Config{
		Port:            getenv("APP_PORT", "8080"),
		Env:             getenv("APP_ENV", "development"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		StoreDriver:     strings.ToLower(getenv("STORE_DRIVER", "mongo")),
		MongoURI:        getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:         getenv("MONGO_DB", "auth_db"),
		SQLitePath:      getenv("SQLITE_PATH", "auth.db"),
		JWTSecret:       getenv("JWT_SECRET", defaultJWTSecret),
		AccessTTL:       dur(getenv("ACCESS_TTL", "15m"), 15*time.Minute),
		RefreshTTL:      dur(getenv("REFRESH_TTL", "336h"), 14*24*time.Hour),
		ResetTTL:        dur(getenv("RESET_TTL", "1h"), time.Hour),
		VerifyTTL:       dur(getenv("VERIFY_TTL", "24h"), 24*time.Hour),
		MagicLinkTTL:    dur(getenv("MAGIC_LINK_TTL", "15m"), 15*time.Minute),
		RedisAddr:       getenv("REDIS_ADDR", ""),
		RateLimitPerMin: atoi(getenv("RATE_LIMIT_PER_MIN", "5")),
		RabbitURL:       getenv("RABBIT_URL", ""),
		RabbitExchange:  getenv("RABBIT_EXCHANGE", "auth.events"),
		RabbitQueue:     getenv("RABBIT_QUEUE", "auth.emails"),
		NotifyWorkers:   atoi(getenv("RABBIT_CONCURRENCY", "4")),
		GoogleClientID:  getenv("GOOGLE_CLIENT_ID", ""),
		GoogleSecret:    getenv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirect:  getenv("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/auth/google/callback"),
		OAuthStateKey:   getenv("OAUTH_STATE_SECRET", defaultStateKey),
		BaseURL:         strings.TrimRight(getenv("APP_BASE_URL", "http://localhost:8080"), "/"),
		CookieName:      getenv("COOKIE_NAME", "access_token"),
		CookieDomain:    getenv("COOKIE_DOMAIN", ""),
		DDService:       getenv("DD_SERVICE", "auth-core"),
		DDEnabled:       getenv("DD_TRACE_ENABLED", "false") == "true",
	}
}

const (
	defaultJWTSecret = "default_secret_key"
	defaultStateKey  = "default_state_key"
)

var (
	ErrWeakJWTSecret = errors.New("config: JWT_SECRET must be set in production")
	ErrWeakStateKey  = errors.New("config: OAUTH_STATE_SECRET must be set in production")
)

// Validate rejects production configs that still carry the development
// secrets. The JWT secret signs every session token.
func (c Config) Validate() error {
	if !c.Production() {
		return nil
	}
	var errs []error
	if c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret {
		errs = append(errs, ErrWeakJWTSecret)
	}
	if c.GoogleEnabled() && (c.OAuthStateKey == "" || c.OAuthStateKey == defaultStateKey) {
		errs = append(errs, ErrWeakStateKey)
	}
	return errors.Join(errs...)
}

func (c Config) Auth() AuthConfig {
	return AuthConfig{
		Secret:       c.JWTSecret,
		AccessTTL:    c.AccessTTL,
		RefreshTTL:   c.RefreshTTL,
		ResetTTL:     c.ResetTTL,
		VerifyTTL:    c.VerifyTTL,
		MagicLinkTTL: c.MagicLinkTTL,
	}
}

func (c Config) Production() bool { return c.Env == "production" }

func (c Config) GoogleEnabled() bool { return c.GoogleClientID != "" && c.GoogleSecret != "" }

func atoi(s string) int {
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return 0
}

func dur(s string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(s); err == nil && v > 0 {
		return v
	}
	return def
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tazhibayda/authcore/docs"
	"github.com/tazhibayda/authcore/internal/config"
	api "github.com/tazhibayda/authcore/internal/http"
	applog "github.com/tazhibayda/authcore/internal/log"
	"github.com/tazhibayda/authcore/internal/mail"
	"github.com/tazhibayda/authcore/internal/metrics"
	"github.com/tazhibayda/authcore/internal/oauth"
	"github.com/tazhibayda/authcore/internal/queue"
	"github.com/tazhibayda/authcore/internal/repo"
	"github.com/tazhibayda/authcore/internal/repo/memstore"
	"github.com/tazhibayda/authcore/internal/repo/sqlstore"
	"github.com/tazhibayda/authcore/internal/service"
	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

// @title Auth API
// @version 0.1.0
// @description Credential issuance and session validation.
// @schemes http https
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.Load()

	logger, err := applog.InitLevel(cfg.Production(), cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	if cfg.DDEnabled {
		tracer.Start(tracer.WithService(cfg.DDService), tracer.WithEnv(cfg.Env))
		defer tracer.Stop()
	}
	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeStore()

	var pub queue.Publisher = queue.NewNoop()
	var mailer service.Mailer = &mail.LogSender{Log: logger, BaseURL: cfg.BaseURL, ShowLinks: !cfg.Production()}
	if cfg.RabbitURL != "" {
		pub, err = queue.NewRabbit(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			logger.Fatal("rabbit publisher", zap.Error(err))
		}
		mailer = mail.NewQueueSender(pub, cfg.RabbitExchange, cfg.BaseURL)
	}
	defer pub.Close()

	core := service.New(cfg.Auth(), service.Deps{
		Repo:     store,
		Mailer:   mailer,
		Events:   pub,
		Exchange: cfg.RabbitExchange,
		Logger:   logger,
	})

	h := api.NewHandler(core, api.CookieConfig{
		Name:   cfg.CookieName,
		Domain: cfg.CookieDomain,
		Secure: cfg.Production(),
		MaxAge: cfg.AccessTTL,
	}, logger)
	if cfg.GoogleEnabled() {
		h.Google = oauth.NewGoogle(cfg.GoogleClientID, cfg.GoogleSecret, cfg.GoogleRedirect, cfg.OAuthStateKey)
	}
	if cfg.RedisAddr != "" {
		rds := repo.NewRedis(cfg.RedisAddr)
		defer rds.Close()
		if err := rds.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, limiter fails open until it recovers", zap.Error(err))
		}
		h.Limiter = api.RedisLimiter{R: rds, Limit: cfg.RateLimitPerMin, Window: time.Minute}
	} else {
		h.Limiter = api.NewRateLimiter(cfg.RateLimitPerMin, time.Minute)
	}

	docs.SwaggerInfo.BasePath = "/"
	opts := api.RouterOptions{Docs: !cfg.Production()}
	if cfg.DDEnabled {
		opts.TraceService = cfg.DDService
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(h, opts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.ListenAndServe() }()
	logger.Info("auth service listening", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-srvErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (service.Repository, func(), error) {
	switch cfg.StoreDriver {
	case "mongo":
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		st, err := repo.NewStore(cctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		if err := st.EnsureIndexes(cctx); err != nil {
			_ = st.Close(context.Background())
			return nil, nil, fmt.Errorf("ensure indexes: %w", err)
		}
		return st, func() { _ = st.Close(context.Background()) }, nil

	case "sqlite":
		st, err := sqlstore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		go purgeTokens(ctx, st, logger)
		return st, func() { _ = st.Close() }, nil

	case "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		return memstore.New(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

func purgeTokens(ctx context.Context, st *sqlstore.Store, logger *zap.Logger) {
	t := time.NewTicker(10 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n, err := st.PurgeExpiredTokens(ctx, now); err != nil {
				logger.Warn("purge verification tokens", zap.Error(err))
			} else if n > 0 {
				logger.Debug("purged verification tokens", zap.Int64("count", n))
			}
		}
	}
}

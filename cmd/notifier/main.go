package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tazhibayda/authcore/internal/config"
	applog "github.com/tazhibayda/authcore/internal/log"
	"github.com/tazhibayda/authcore/internal/mail"
	"github.com/tazhibayda/authcore/internal/queue"
	"go.uber.org/zap"
)

// notifier delivers the emails the auth service queues on email.requested.
func main() {
	cfg := config.Load()

	logger, err := applog.InitLevel(cfg.Production(), cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.RabbitURL == "" {
		logger.Fatal("RABBIT_URL is required")
	}
	cons, err := queue.NewConsumer(cfg.RabbitURL, cfg.RabbitExchange, cfg.RabbitQueue, queue.KeyEmailRequested)
	if err != nil {
		logger.Fatal("rabbit consumer init failed", zap.Error(err))
	}
	defer cons.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("notifier up",
		zap.String("exchange", cfg.RabbitExchange),
		zap.String("queue", cfg.RabbitQueue),
		zap.Int("workers", cfg.NotifyWorkers),
	)
	handle := mail.Handler(mail.LogDeliverer{Log: logger}, logger)
	if err := cons.Consume(ctx, cfg.NotifyWorkers, handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("consumer stopped", zap.Error(err))
	}
	logger.Info("notifier stopped")
}

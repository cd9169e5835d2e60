package mail

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tazhibayda/authcore/internal/domain"
	"github.com/tazhibayda/authcore/internal/helper"
	"github.com/tazhibayda/authcore/internal/queue"
	"go.uber.org/zap"
)

// Link builds the URL a recipient follows to use a verification token.
func Link(baseURL string, typ domain.TokenType, token string) string {
	var path string
	switch typ {
	case domain.TokenResetPassword:
		path = "/reset-password"
	case domain.TokenVerifyEmail:
		path = "/api/auth/verify-email"
	case domain.TokenMagicLink:
		path = "/api/auth/magic-link/verify"
	default:
		path = "/"
	}
	return baseURL + path + "?token=" + url.QueryEscape(token)
}

// QueueSender hands emails to the delivery worker over RabbitMQ.
type QueueSender struct {
	pub      queue.Publisher
	exchange string
	baseURL  string
}

func NewQueueSender(pub queue.Publisher, exchange, baseURL string) *QueueSender {
	return &QueueSender{pub: pub, exchange: exchange, baseURL: baseURL}
}

func (s *QueueSender) Send(ctx context.Context, to string, typ domain.TokenType, token string) error {
	ev := queue.EmailRequested{To: to, Template: string(typ), Link: Link(s.baseURL, typ, token)}
	if err := s.pub.Publish(ctx, s.exchange, queue.KeyEmailRequested, ev, queue.RequestID(ctx)); err != nil {
		return fmt.Errorf("publish email request: %w", err)
	}
	return nil
}

// LogSender writes emails to the log instead of delivering them. Links are
// only logged when ShowLinks is set.
type LogSender struct {
	Log       *zap.Logger
	BaseURL   string
	ShowLinks bool
}

func (s *LogSender) Send(ctx context.Context, to string, typ domain.TokenType, token string) error {
	fields := []zap.Field{zap.String("to", helper.Hash8(to)), zap.String("template", string(typ))}
	if s.ShowLinks {
		fields = append(fields, zap.String("link", Link(s.BaseURL, typ, token)))
	}
	s.Log.Info("mail", fields...)
	return nil
}

// Subject returns the subject line for a template.
func Subject(template string) string {
	switch domain.TokenType(template) {
	case domain.TokenResetPassword:
		return "Reset your password"
	case domain.TokenVerifyEmail:
		return "Confirm your email address"
	case domain.TokenMagicLink:
		return "Your sign-in link"
	default:
		return "Notification"
	}
}

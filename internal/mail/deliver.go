package mail

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tazhibayda/authcore/internal/helper"
	applog "github.com/tazhibayda/authcore/internal/log"
	"github.com/tazhibayda/authcore/internal/queue"
	"go.uber.org/zap"
)

// Deliverer hands a rendered message to the outside world.
type Deliverer interface {
	Deliver(ctx context.Context, to, subject, body string) error
}

// Handler decodes email.requested events and delivers them. Malformed
// payloads are dropped, delivery errors are returned for a requeue.
func Handler(d Deliverer, lg *zap.Logger) func(context.Context, []byte) error {
	return func(ctx context.Context, b []byte) error {
		var ev queue.EmailRequested
		if err := json.Unmarshal(b, &ev); err != nil || ev.To == "" {
			applog.WithDD(ctx, lg).Warn("drop malformed email request", zap.Int("bytes", len(b)), zap.Error(err))
			return nil
		}
		body := fmt.Sprintf("%s:\n\n%s\n", Subject(ev.Template), ev.Link)
		if err := d.Deliver(ctx, ev.To, Subject(ev.Template), body); err != nil {
			return fmt.Errorf("deliver to %s: %w", helper.Hash8(ev.To), err)
		}
		return nil
	}
}

// LogDeliverer writes messages to the log. It stands in for an SMTP relay.
type LogDeliverer struct {
	Log *zap.Logger
}

func (d LogDeliverer) Deliver(ctx context.Context, to, subject, body string) error {
	applog.WithDD(ctx, d.Log).Info("mail delivered",
		zap.String("to", helper.Hash8(to)),
		zap.String("subject", subject),
		zap.Int("body_len", len(body)),
	)
	return nil
}

package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tazhibayda/authcore/internal/domain"
)

func (s *Store) FindSubscriptionByEmail(ctx context.Context, email string) (*domain.Subscription, error) {
	var (
		sub       domain.Subscription
		endsAt    sql.NullInt64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, status, ends_at, updated_at FROM subscriptions
		 WHERE email = ? ORDER BY updated_at DESC LIMIT 1`, email,
	).Scan(&sub.ID, &sub.Email, &sub.Status, &endsAt, &updatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if endsAt.Valid {
		t := fromMillis(endsAt.Int64)
		sub.EndsAt = &t
	}
	sub.UpdatedAt = fromMillis(updatedAt)
	return &sub, nil
}

// SaveSubscription upserts a billing record by id. It is the write side used
// by the billing webhook processor and by tests.
func (s *Store) SaveSubscription(ctx context.Context, sub domain.Subscription) error {
	var endsAt sql.NullInt64
	if sub.EndsAt != nil {
		endsAt = nullMillis(*sub.EndsAt)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, email, status, ends_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET email = excluded.email, status = excluded.status,
		     ends_at = excluded.ends_at, updated_at = excluded.updated_at`,
		sub.ID, sub.Email, string(sub.Status), endsAt, toMillis(sub.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

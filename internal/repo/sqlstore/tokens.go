package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/tazhibayda/authcore/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (s *Store) InsertVerificationToken(ctx context.Context, t *domain.VerificationToken) error {
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verification_tokens (id, token, email, type, expires_at, blacklisted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID.Hex(), t.Token, t.Email, string(t.Type), toMillis(t.ExpiresAt), boolInt(t.Blacklisted), toMillis(t.CreatedAt),
	)
	if err != nil {
		if isDup(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert verification token: %w", err)
	}
	return nil
}

func (s *Store) FindVerificationToken(ctx context.Context, f domain.VerificationTokenFilter) (*domain.VerificationToken, error) {
	var (
		t                    domain.VerificationToken
		id                   string
		blacklisted          int
		expiresAt, createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, token, email, type, expires_at, blacklisted, created_at FROM verification_tokens
		 WHERE token = ? AND type = ? AND email = ? AND blacklisted = ?`,
		f.Token, string(f.Type), f.Email, boolInt(f.Blacklisted),
	).Scan(&id, &t.Token, &t.Email, &t.Type, &expiresAt, &blacklisted, &createdAt)
	if err != nil {
		return nil, notFound(err)
	}
	if t.ID, err = primitive.ObjectIDFromHex(id); err != nil {
		return nil, fmt.Errorf("verification token id %q: %w", id, err)
	}
	t.ExpiresAt = fromMillis(expiresAt)
	t.Blacklisted = blacklisted != 0
	t.CreatedAt = fromMillis(createdAt)
	return &t, nil
}

func (s *Store) DeleteVerificationTokens(ctx context.Context, email string, typ domain.TokenType) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM verification_tokens WHERE email = ? AND type = ?`, email, string(typ))
	if err != nil {
		return 0, fmt.Errorf("delete verification tokens: %w", err)
	}
	return res.RowsAffected()
}

// PurgeExpiredTokens removes verification tokens past their expiry. Mongo
// does this with a TTL index; here the server calls it periodically.
func (s *Store) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM verification_tokens WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("purge verification tokens: %w", err)
	}
	return res.RowsAffected()
}

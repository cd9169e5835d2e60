package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tazhibayda/authcore/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const accountCols = `id, user_id, provider, provider_account_id, access_token, access_expires_at,
	refresh_token, refresh_expires_at, id_token, scope, blacklisted, created_at, updated_at`

func scanAccount(sc scanner) (*domain.Account, error) {
	var (
		a                    domain.Account
		id, userID           string
		providerAccountID    sql.NullString
		accessExp, refExp    sql.NullInt64
		blacklisted          int
		createdAt, updatedAt int64
	)
	if err := sc.Scan(&id, &userID, &a.Provider, &providerAccountID, &a.AccessToken, &accessExp,
		&a.RefreshToken, &refExp, &a.IDToken, &a.Scope, &blacklisted, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if a.ID, err = primitive.ObjectIDFromHex(id); err != nil {
		return nil, fmt.Errorf("account id %q: %w", id, err)
	}
	if a.UserID, err = primitive.ObjectIDFromHex(userID); err != nil {
		return nil, fmt.Errorf("account user id %q: %w", userID, err)
	}
	a.ProviderAccountID = providerAccountID.String
	a.AccessExpiresAt = fromNullMillis(accessExp)
	a.RefreshExpiresAt = fromNullMillis(refExp)
	a.Blacklisted = blacklisted != 0
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return &a, nil
}

func accountWhere(f domain.AccountFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !f.UserID.IsZero() {
		conds, args = append(conds, "user_id = ?"), append(args, f.UserID.Hex())
	}
	if f.Provider != "" {
		conds, args = append(conds, "provider = ?"), append(args, string(f.Provider))
	}
	if f.ProviderAccountID != "" {
		conds, args = append(conds, "provider_account_id = ?"), append(args, f.ProviderAccountID)
	}
	if f.AccessToken != "" {
		conds, args = append(conds, "access_token = ?"), append(args, f.AccessToken)
	}
	if f.Blacklisted != nil {
		conds, args = append(conds, "blacklisted = ?"), append(args, boolInt(*f.Blacklisted))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) FindAccount(ctx context.Context, f domain.AccountFilter) (*domain.Account, error) {
	where, args := accountWhere(f)
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountCols+` FROM accounts`+where+` ORDER BY blacklisted, updated_at DESC LIMIT 1`, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (s *Store) ListAccounts(ctx context.Context, userID primitive.ObjectID) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE user_id = ? ORDER BY created_at`, userID.Hex())
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Store) InsertAccount(ctx context.Context, a *domain.Account) error {
	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.Hex(), a.UserID.Hex(), string(a.Provider), nullString(a.ProviderAccountID),
		a.AccessToken, nullMillis(a.AccessExpiresAt), a.RefreshToken, nullMillis(a.RefreshExpiresAt),
		a.IDToken, a.Scope, boolInt(a.Blacklisted), toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
	)
	if err != nil {
		if isDup(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Store) UpdateAccount(ctx context.Context, a *domain.Account) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET provider_account_id = ?, access_token = ?, access_expires_at = ?,
		 refresh_token = ?, refresh_expires_at = ?, id_token = ?, scope = ?, blacklisted = ?, updated_at = ?
		 WHERE id = ?`,
		nullString(a.ProviderAccountID), a.AccessToken, nullMillis(a.AccessExpiresAt),
		a.RefreshToken, nullMillis(a.RefreshExpiresAt), a.IDToken, a.Scope, boolInt(a.Blacklisted),
		toMillis(a.UpdatedAt), a.ID.Hex(),
	)
	if err != nil {
		if isDup(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("update account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpsertAccountTokens targets the partial unique index on live
// (user_id, provider) rows, so the insert and the update are one statement.
func (s *Store) UpsertAccountTokens(ctx context.Context, userID primitive.ObjectID, provider domain.Provider, t domain.SessionTokens) (*domain.Account, error) {
	now := toMillis(time.Now())
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`INSERT INTO accounts (id, user_id, provider, access_token, access_expires_at,
		     refresh_token, refresh_expires_at, blacklisted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT (user_id, provider) WHERE blacklisted = 0 DO UPDATE SET
		     access_token = excluded.access_token,
		     access_expires_at = excluded.access_expires_at,
		     refresh_token = excluded.refresh_token,
		     refresh_expires_at = excluded.refresh_expires_at,
		     updated_at = excluded.updated_at
		 RETURNING `+accountCols,
		primitive.NewObjectID().Hex(), userID.Hex(), string(provider),
		t.AccessToken, nullMillis(t.AccessExpiresAt), t.RefreshToken, nullMillis(t.RefreshExpiresAt),
		now, now,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert account tokens: %w", err)
	}
	return a, nil
}

func (s *Store) BlacklistAccounts(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET blacklisted = 1, updated_at = ? WHERE user_id = ? AND blacklisted = 0`,
		toMillis(time.Now()), userID.Hex())
	if err != nil {
		return 0, fmt.Errorf("blacklist accounts: %w", err)
	}
	return res.RowsAffected()
}

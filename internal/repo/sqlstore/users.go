package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tazhibayda/authcore/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const userCols = `id, email, name, password_hash, email_verified, role, image, settings, created_at, updated_at`

func scanUser(sc scanner) (*domain.User, error) {
	var (
		u                    domain.User
		id                   string
		verified             int
		settings             sql.NullString
		createdAt, updatedAt int64
	)
	if err := sc.Scan(&id, &u.Email, &u.Name, &u.PasswordHash, &verified, &u.Role,
		&u.Image, &settings, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("user id %q: %w", id, err)
	}
	u.ID = oid
	u.EmailVerified = verified != 0
	if settings.Valid && settings.String != "" {
		if err := json.Unmarshal([]byte(settings.String), &u.Settings); err != nil {
			return nil, fmt.Errorf("user settings: %w", err)
		}
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}

func encodeSettings(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode settings: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = ?`, email))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *Store) FindUserByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id.Hex()))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *Store) InsertUser(ctx context.Context, u *domain.User) error {
	settings, err := encodeSettings(u.Settings)
	if err != nil {
		return err
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (`+userCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID.Hex(), u.Email, u.Name, u.PasswordHash, boolInt(u.EmailVerified), string(u.Role),
		u.Image, settings, toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	if err != nil {
		if isDup(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, u *domain.User) error {
	settings, err := encodeSettings(u.Settings)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET email = ?, name = ?, password_hash = ?, email_verified = ?, role = ?,
		 image = ?, settings = ?, updated_at = ? WHERE id = ?`,
		u.Email, u.Name, u.PasswordHash, boolInt(u.EmailVerified), string(u.Role),
		u.Image, settings, toMillis(u.UpdatedAt), u.ID.Hex(),
	)
	if err != nil {
		if isDup(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/tazhibayda/authcore/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

func (s *Store) InsertVerificationToken(ctx context.Context, t *domain.VerificationToken) (err error) {
	sp, ctx := startSpan(ctx, "verification_token.insert", tracer.Tag("type", string(t.Type)))
	defer func() { finish(sp, err) }()

	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	if _, err = s.tokens.InsertOne(ctx, t); err != nil {
		if IsDup(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert verification token: %w", err)
	}
	return nil
}

func (s *Store) FindVerificationToken(ctx context.Context, f domain.VerificationTokenFilter) (t *domain.VerificationToken, err error) {
	sp, ctx := startSpan(ctx, "verification_token.find", tracer.Tag("type", string(f.Type)))
	defer func() { finish(sp, err) }()

	var vt domain.VerificationToken
	err = s.tokens.FindOne(ctx, bson.M{
		"token":       f.Token,
		"type":        f.Type,
		"email":       f.Email,
		"blacklisted": f.Blacklisted,
	}).Decode(&vt)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find verification token: %w", err)
	}
	return &vt, nil
}

func (s *Store) DeleteVerificationTokens(ctx context.Context, email string, typ domain.TokenType) (n int64, err error) {
	sp, ctx := startSpan(ctx, "verification_token.delete_many", tracer.Tag("type", string(typ)))
	defer func() { finish(sp, err) }()

	res, err := s.tokens.DeleteMany(ctx, bson.M{"email": email, "type": typ})
	if err != nil {
		return 0, fmt.Errorf("delete verification tokens: %w", err)
	}
	return res.DeletedCount, nil
}

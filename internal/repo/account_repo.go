package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tazhibayda/authcore/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

func accountFilter(f domain.AccountFilter) bson.M {
	m := bson.M{}
	if !f.UserID.IsZero() {
		m["user_id"] = f.UserID
	}
	if f.Provider != "" {
		m["provider"] = f.Provider
	}
	if f.ProviderAccountID != "" {
		m["provider_account_id"] = f.ProviderAccountID
	}
	if f.AccessToken != "" {
		m["access_token"] = f.AccessToken
	}
	if f.Blacklisted != nil {
		m["blacklisted"] = *f.Blacklisted
	}
	return m
}

func (s *Store) FindAccount(ctx context.Context, f domain.AccountFilter) (a *domain.Account, err error) {
	sp, ctx := startSpan(ctx, "account.find", tracer.Tag("provider", string(f.Provider)))
	defer func() { finish(sp, err) }()

	var acc domain.Account
	err = s.accounts.FindOne(ctx, accountFilter(f)).Decode(&acc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &acc, nil
}

func (s *Store) ListAccounts(ctx context.Context, userID primitive.ObjectID) (out []domain.Account, err error) {
	sp, ctx := startSpan(ctx, "account.list")
	defer func() { finish(sp, err) }()

	cur, err := s.accounts.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer cur.Close(ctx)
	if err = cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	return out, nil
}

func (s *Store) InsertAccount(ctx context.Context, a *domain.Account) (err error) {
	sp, ctx := startSpan(ctx, "account.insert", tracer.Tag("provider", string(a.Provider)))
	defer func() { finish(sp, err) }()

	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	if _, err = s.accounts.InsertOne(ctx, a); err != nil {
		if IsDup(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Store) UpdateAccount(ctx context.Context, a *domain.Account) (err error) {
	sp, ctx := startSpan(ctx, "account.update")
	defer func() { finish(sp, err) }()

	res, err := s.accounts.ReplaceOne(ctx, bson.M{"_id": a.ID}, a)
	if err != nil {
		if IsDup(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("update account: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpsertAccountTokens relies on the partial unique index over live
// (user_id, provider) rows: two racing upserts that both miss insert once,
// the loser gets E11000 and its retry updates the winner's row.
func (s *Store) UpsertAccountTokens(ctx context.Context, userID primitive.ObjectID, provider domain.Provider, t domain.SessionTokens) (a *domain.Account, err error) {
	sp, ctx := startSpan(ctx, "account.upsert_tokens", tracer.Tag("provider", string(provider)))
	defer func() { finish(sp, err) }()

	now := time.Now().UTC()
	filter := bson.M{"user_id": userID, "provider": provider, "blacklisted": false}
	update := bson.M{
		"$set": bson.M{
			"access_token":       t.AccessToken,
			"access_expires_at":  t.AccessExpiresAt,
			"refresh_token":      t.RefreshToken,
			"refresh_expires_at": t.RefreshExpiresAt,
			"updated_at":         now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	for attempt := 0; attempt < 2; attempt++ {
		var acc domain.Account
		err = s.accounts.FindOneAndUpdate(ctx, filter, update, opts).Decode(&acc)
		if err == nil {
			return &acc, nil
		}
		if !IsDup(err) {
			break
		}
	}
	return nil, fmt.Errorf("upsert account tokens: %w", err)
}

func (s *Store) BlacklistAccounts(ctx context.Context, userID primitive.ObjectID) (n int64, err error) {
	sp, ctx := startSpan(ctx, "account.blacklist_user")
	defer func() { finish(sp, err) }()

	res, err := s.accounts.UpdateMany(ctx,
		bson.M{"user_id": userID, "blacklisted": false},
		bson.M{"$set": bson.M{"blacklisted": true, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return 0, fmt.Errorf("blacklist accounts: %w", err)
	}
	return res.ModifiedCount, nil
}

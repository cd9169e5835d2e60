package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/tazhibayda/authcore/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FindSubscriptionByEmail returns the most recently updated billing record.
// The collection is written by the billing webhook processor.
func (s *Store) FindSubscriptionByEmail(ctx context.Context, email string) (sub *domain.Subscription, err error) {
	sp, ctx := startSpan(ctx, "subscription.find_by_email")
	defer func() { finish(sp, err) }()

	var out domain.Subscription
	err = s.subs.FindOne(ctx, bson.M{"email": email},
		options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}}),
	).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	return &out, nil
}

func (s *Store) SaveSubscription(ctx context.Context, sub domain.Subscription) (err error) {
	sp, ctx := startSpan(ctx, "subscription.save")
	defer func() { finish(sp, err) }()

	_, err = s.subs.ReplaceOne(ctx, bson.M{"_id": sub.ID}, sub, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

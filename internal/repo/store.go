package repo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

const (
	colUsers         = "users"
	colAccounts      = "accounts"
	colTokens        = "verification_tokens"
	colSubscriptions = "subscriptions"
)

// Store is the MongoDB implementation of the auth repository.
type Store struct {
	Client *mongo.Client
	DB     *mongo.Database

	users    *mongo.Collection
	accounts *mongo.Collection
	tokens   *mongo.Collection
	subs     *mongo.Collection
}

func NewStore(ctx context.Context, uri, dbname string) (*Store, error) {
	cli, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetRetryWrites(true).
		SetMaxPoolSize(50),
	)
	if err != nil {
		return nil, err
	}
	db := cli.Database(dbname)
	return &Store{
		Client:   cli,
		DB:       db,
		users:    db.Collection(colUsers),
		accounts: db.Collection(colAccounts),
		tokens:   db.Collection(colTokens),
		subs:     db.Collection(colSubscriptions),
	}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}

// EnsureIndexes creates the unique keys the core relies on. The partial
// indexes on accounts allow any number of blacklisted rows next to the one
// live row per (user, provider).
func (s *Store) EnsureIndexes(ctx context.Context) error {
	live := bson.M{"blacklisted": false}

	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_email"),
	}); err != nil {
		return err
	}

	if _, err := s.accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "provider", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_live_user_provider").
				SetPartialFilterExpression(live),
		},
		{
			Keys: bson.D{{Key: "provider", Value: 1}, {Key: "provider_account_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_live_provider_identity").
				SetPartialFilterExpression(bson.M{
					"blacklisted":         false,
					"provider_account_id": bson.M{"$exists": true},
				}),
		},
		{
			Keys:    bson.D{{Key: "access_token", Value: 1}},
			Options: options.Index().SetName("access_token"),
		},
	}); err != nil {
		return err
	}

	if _, err := s.tokens.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			// TTL: mongo drops expired tokens on its own
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("ttl_expire"),
		},
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_token"),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}, {Key: "type", Value: 1}},
			Options: options.Index().SetName("email_type"),
		},
	}); err != nil {
		return err
	}

	_, err := s.subs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}, {Key: "updated_at", Value: -1}},
		Options: options.Index().SetName("email_updated_desc"),
	})
	return err
}

func IsDup(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	return mongo.IsDuplicateKeyError(err)
}

func startSpan(ctx context.Context, op string, opts ...tracer.StartSpanOption) (ddtrace.Span, context.Context) {
	opts = append(opts, tracer.ServiceName("auth-mongo"), tracer.SpanType("mongodb"))
	return tracer.StartSpanFromContext(ctx, "mongo."+op, opts...)
}

func finish(sp ddtrace.Span, err error) {
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		sp.Finish(tracer.WithError(err))
		return
	}
	sp.Finish()
}

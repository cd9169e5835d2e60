package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/tazhibayda/authcore/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func (s *Store) FindUserByEmail(ctx context.Context, email string) (u *domain.User, err error) {
	sp, ctx := startSpan(ctx, "user.find_by_email")
	defer func() { finish(sp, err) }()
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *Store) FindUserByID(ctx context.Context, id primitive.ObjectID) (u *domain.User, err error) {
	sp, ctx := startSpan(ctx, "user.find_by_id")
	defer func() { finish(sp, err) }()
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*domain.User, error) {
	var u domain.User
	err := s.users.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (s *Store) InsertUser(ctx context.Context, u *domain.User) (err error) {
	sp, ctx := startSpan(ctx, "user.insert")
	defer func() { finish(sp, err) }()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if _, err = s.users.InsertOne(ctx, u); err != nil {
		if IsDup(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, u *domain.User) (err error) {
	sp, ctx := startSpan(ctx, "user.update")
	defer func() { finish(sp, err) }()
	res, err := s.users.ReplaceOne(ctx, bson.M{"_id": u.ID}, u)
	if err != nil {
		if IsDup(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

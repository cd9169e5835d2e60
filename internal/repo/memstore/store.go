// Package memstore is an in-process Repository. It enforces the same unique
// constraints as the database adapters and is used in development mode and
// tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/tazhibayda/authcore/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Store struct {
	mu       sync.RWMutex
	users    map[primitive.ObjectID]domain.User
	accounts []domain.Account
	tokens   []domain.VerificationToken
	subs     map[string]domain.Subscription
}

func New() *Store {
	return &Store{
		users: map[primitive.ObjectID]domain.User{},
		subs:  map[string]domain.Subscription{},
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) FindUserByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (s *Store) InsertUser(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.users {
		if other.Email == u.Email {
			return domain.ErrDuplicate
		}
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	s.users[u.ID] = *u
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return domain.ErrNotFound
	}
	for id, other := range s.users {
		if id != u.ID && other.Email == u.Email {
			return domain.ErrDuplicate
		}
	}
	s.users[u.ID] = *u
	return nil
}

// DeleteUser stands in for the external admin operation; the core never
// deletes users.
func (s *Store) DeleteUser(id primitive.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

func matchAccount(a domain.Account, f domain.AccountFilter) bool {
	switch {
	case !f.UserID.IsZero() && a.UserID != f.UserID:
		return false
	case f.Provider != "" && a.Provider != f.Provider:
		return false
	case f.ProviderAccountID != "" && a.ProviderAccountID != f.ProviderAccountID:
		return false
	case f.AccessToken != "" && a.AccessToken != f.AccessToken:
		return false
	case f.Blacklisted != nil && a.Blacklisted != *f.Blacklisted:
		return false
	}
	return true
}

func (s *Store) FindAccount(ctx context.Context, f domain.AccountFilter) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if matchAccount(a, f) {
			return &a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListAccounts(ctx context.Context, userID primitive.ObjectID) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Account
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

// conflicts reports whether a would violate a live-account unique key,
// ignoring the row at index skip.
func (s *Store) conflicts(a domain.Account, skip int) bool {
	if a.Blacklisted {
		return false
	}
	for i, o := range s.accounts {
		if i == skip || o.Blacklisted {
			continue
		}
		if o.UserID == a.UserID && o.Provider == a.Provider {
			return true
		}
		if a.ProviderAccountID != "" && o.Provider == a.Provider && o.ProviderAccountID == a.ProviderAccountID {
			return true
		}
	}
	return false
}

func (s *Store) InsertAccount(ctx context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts(*a, -1) {
		return domain.ErrDuplicate
	}
	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	s.accounts = append(s.accounts, *a)
	return nil
}

func (s *Store) UpdateAccount(ctx context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.accounts {
		if s.accounts[i].ID == a.ID {
			if s.conflicts(*a, i) {
				return domain.ErrDuplicate
			}
			s.accounts[i] = *a
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *Store) UpsertAccountTokens(ctx context.Context, userID primitive.ObjectID, provider domain.Provider, t domain.SessionTokens) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for i := range s.accounts {
		a := &s.accounts[i]
		if a.UserID == userID && a.Provider == provider && !a.Blacklisted {
			a.AccessToken, a.AccessExpiresAt = t.AccessToken, t.AccessExpiresAt
			a.RefreshToken, a.RefreshExpiresAt = t.RefreshToken, t.RefreshExpiresAt
			a.UpdatedAt = now
			out := *a
			return &out, nil
		}
	}
	a := domain.Account{
		ID:               primitive.NewObjectID(),
		UserID:           userID,
		Provider:         provider,
		AccessToken:      t.AccessToken,
		AccessExpiresAt:  t.AccessExpiresAt,
		RefreshToken:     t.RefreshToken,
		RefreshExpiresAt: t.RefreshExpiresAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.accounts = append(s.accounts, a)
	return &a, nil
}

func (s *Store) BlacklistAccounts(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.accounts {
		if s.accounts[i].UserID == userID && !s.accounts[i].Blacklisted {
			s.accounts[i].Blacklisted = true
			n++
		}
	}
	return n, nil
}

func (s *Store) InsertVerificationToken(ctx context.Context, t *domain.VerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.tokens {
		if o.Token == t.Token {
			return domain.ErrDuplicate
		}
	}
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	s.tokens = append(s.tokens, *t)
	return nil
}

func (s *Store) FindVerificationToken(ctx context.Context, f domain.VerificationTokenFilter) (*domain.VerificationToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tokens {
		if t.Token == f.Token && t.Type == f.Type && t.Email == f.Email && t.Blacklisted == f.Blacklisted {
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) DeleteVerificationTokens(ctx context.Context, email string, typ domain.TokenType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tokens[:0]
	var n int64
	for _, t := range s.tokens {
		if t.Email == email && t.Type == typ {
			n++
			continue
		}
		kept = append(kept, t)
	}
	s.tokens = kept
	return n, nil
}

func (s *Store) FindSubscriptionByEmail(ctx context.Context, email string) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &sub, nil
}

// SaveSubscription plays the billing webhook processor.
func (s *Store) SaveSubscription(ctx context.Context, sub domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.Email] = sub
	return nil
}

// Counts returns the number of users and accounts, for assertions.
func (s *Store) Counts() (users, accounts int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), len(s.accounts)
}

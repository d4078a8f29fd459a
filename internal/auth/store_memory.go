package auth

import (
	"context"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"panelmerge/pkg/platform/sentinel"
)

// UserStore resolves principals for authentication.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
}

// InMemoryUserStore holds users in memory. Seeded at startup; user
// management itself is outside this application's scope.
type InMemoryUserStore struct {
	mu     sync.RWMutex
	byName map[string]*User
	byID   map[int64]*User
	nextID int64
}

// NewInMemoryUserStore creates an empty user store.
func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		byName: make(map[string]*User),
		byID:   make(map[int64]*User),
		nextID: 1,
	}
}

// Seed adds a user with a freshly hashed password, assigning the next ID.
func (s *InMemoryUserStore) Seed(username, displayName, password string, role Role) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := &User{
		ID:           s.nextID,
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         role,
	}
	s.nextID++
	s.byName[username] = user
	s.byID[user.ID] = user
	return user, nil
}

func (s *InMemoryUserStore) GetByUsername(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byName[username]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *InMemoryUserStore) GetByID(_ context.Context, id int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

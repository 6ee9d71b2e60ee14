package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonwraymond/gatekeep/token"
)

// User is the stored record needed to authenticate a principal.
type User struct {
	ID           string
	PasswordHash string
	Role         token.Role
}

// UserStore looks up users by login identifier.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: returns ErrUserNotFound (possibly wrapped) when no user matches;
//   any other error is an internal failure.
type UserStore interface {
	FindUserByIdentifier(ctx context.Context, identifier string) (*User, error)
}

// UserAccounts is a UserStore that can also create users and replace
// password hashes. Register and ChangePassword require it.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Atomicity: CreateUser must fail with ErrIdentifierTaken when identifier
//   or u.ID is already present, even under concurrent calls.
// - Errors: FindUserByID and UpdatePasswordHash return ErrUserNotFound when
//   no user has the id.
type UserAccounts interface {
	UserStore

	CreateUser(ctx context.Context, identifier string, u User) error
	FindUserByID(ctx context.Context, id string) (*User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// UserStoreFunc adapts a function to UserStore.
type UserStoreFunc func(ctx context.Context, identifier string) (*User, error)

// FindUserByIdentifier calls f.
func (f UserStoreFunc) FindUserByIdentifier(ctx context.Context, identifier string) (*User, error) {
	return f(ctx, identifier)
}

// MemoryUserStore is an in-memory UserAccounts. Several identifiers may
// name the same user id.
type MemoryUserStore struct {
	mu    sync.RWMutex
	ids   map[string]string // identifier -> user id
	users map[string]User   // user id -> record
}

// NewMemoryUserStore creates a store holding users, each reachable under
// its ID as identifier.
func NewMemoryUserStore(users ...User) *MemoryUserStore {
	s := &MemoryUserStore{
		ids:   make(map[string]string, len(users)),
		users: make(map[string]User, len(users)),
	}
	for _, u := range users {
		s.ids[u.ID] = u.ID
		s.users[u.ID] = u
	}
	return s
}

func validUser(identifier string, u User) error {
	if identifier == "" || u.ID == "" {
		return fmt.Errorf("%w: user needs an identifier and an id", ErrInvalidConfig)
	}
	if !u.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidConfig, string(u.Role))
	}
	return nil
}

// Put stores u under identifier, replacing any existing entry for either.
func (s *MemoryUserStore) Put(identifier string, u User) error {
	if err := validUser(identifier, u); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[identifier] = u.ID
	s.users[u.ID] = u
	return nil
}

// CreateUser stores u under identifier unless either is already taken.
func (s *MemoryUserStore) CreateUser(_ context.Context, identifier string, u User) error {
	if err := validUser(identifier, u); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[identifier]; ok {
		return ErrIdentifierTaken
	}
	if _, ok := s.users[u.ID]; ok {
		return ErrIdentifierTaken
	}
	s.ids[identifier] = u.ID
	s.users[u.ID] = u
	return nil
}

// FindUserByIdentifier returns a copy of the user stored under identifier.
func (s *MemoryUserStore) FindUserByIdentifier(_ context.Context, identifier string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.ids[identifier]
	if !ok {
		return nil, ErrUserNotFound
	}
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// FindUserByID returns a copy of the user with the given id.
func (s *MemoryUserStore) FindUserByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// UpdatePasswordHash replaces the stored hash of user id.
func (s *MemoryUserStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	s.users[id] = u
	return nil
}

var _ UserAccounts = (*MemoryUserStore)(nil)

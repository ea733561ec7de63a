package auth

import (
	"context"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

type MemStore struct {
	mu     sync.RWMutex
	byName map[string]User
	cost   int
}

func NewMemStore() *MemStore {
	return &MemStore{byName: make(map[string]User), cost: bcrypt.DefaultCost}
}

// NewMemStoreFromAccounts hashes every account with cost. Pass 0 for the
// bcrypt default.
func NewMemStoreFromAccounts(accounts []Account, cost int) (*MemStore, error) {
	s := NewMemStore()
	if cost > 0 {
		s.cost = cost
	}
	for _, a := range accounts {
		if err := s.Put(a.Name, a.Password, RoleUploader); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MemStore) Ping(context.Context) error { return nil }

// Put adds or replaces a user.
func (s *MemStore) Put(name, password, role string) error {
	name = normalizeName(name)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[name] = User{Name: name, Hash: hash, Role: role}
	return nil
}

func (s *MemStore) Verify(_ context.Context, name, password string) (User, error) {
	name = normalizeName(name)

	s.mu.RLock()
	u, ok := s.byName[name]
	s.mu.RUnlock()

	if !ok {
		return User{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(u.Hash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	return u, nil
}

// Package memory is the in-process UserDirectory, used by tests and the
// dev storage driver.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Puvox/sign-in-with-essentials/internal/directory"
)

type Store struct {
	mu       sync.RWMutex
	users    map[string]*directory.LocalUser // id -> user
	metas    map[string]map[string]string    // id -> key -> value
	sessions map[string]string               // token -> user id
}

func New() *Store {
	return &Store{
		users:    make(map[string]*directory.LocalUser),
		metas:    make(map[string]map[string]string),
		sessions: make(map[string]string),
	}
}

func (s *Store) FindByEmail(_ context.Context, email string) (*directory.LocalUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return clone(u), nil
		}
	}
	return nil, nil
}

func (s *Store) FindByMeta(_ context.Context, key, value string) ([]*directory.LocalUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*directory.LocalUser
	for id, m := range s.metas {
		if m[key] == value {
			if u, ok := s.users[id]; ok {
				out = append(out, clone(u))
			}
		}
	}
	return out, nil
}

func (s *Store) Create(_ context.Context, nu directory.NewUser) (*directory.LocalUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, nu.Email) {
			return nil, fmt.Errorf("email already registered: %s", nu.Email)
		}
	}
	u := &directory.LocalUser{
		ID:           uuid.NewString(),
		Login:        nu.Login,
		Email:        nu.Email,
		Role:         nu.Role,
		RegisteredAt: nu.RegisteredAt,
	}
	s.users[u.ID] = u
	s.metas[u.ID] = make(map[string]string)
	return clone(u), nil
}

func (s *Store) AddMetaIfAbsent(_ context.Context, userID, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.metas[userID]
	if !ok {
		return false, fmt.Errorf("no such user: %s", userID)
	}
	if _, exists := m[key]; exists {
		return false, nil
	}
	m[key] = value
	return true, nil
}

func (s *Store) UpdateMeta(_ context.Context, userID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.metas[userID]
	if !ok {
		return fmt.Errorf("no such user: %s", userID)
	}
	m[key] = value
	return nil
}

func (s *Store) DeleteMeta(_ context.Context, userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.metas[userID]; ok {
		delete(m, key)
	}
	return nil
}

func (s *Store) EstablishSession(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return "", fmt.Errorf("no such user: %s", userID)
	}
	token := uuid.NewString()
	s.sessions[token] = userID
	return token, nil
}

func (s *Store) CurrentSessionUser(ctx context.Context) (*directory.LocalUser, error) {
	token, ok := directory.SessionTokenFrom(ctx)
	if !ok {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.sessions[token]
	if !ok {
		return nil, nil
	}
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return clone(u), nil
}

// Meta reads one meta value; test helper beyond the directory contract.
func (s *Store) Meta(userID, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metas[userID]
	if !ok {
		return "", false
	}
	v, ok := m[key]
	return v, ok
}

// UserCount reports how many accounts exist; test helper.
func (s *Store) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func clone(u *directory.LocalUser) *directory.LocalUser {
	cp := *u
	return &cp
}

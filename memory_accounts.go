package authsession

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryAccountStore is an AccountStore held in process memory. It suits
// tests and single-process demos; accounts are lost on restart.
type MemoryAccountStore struct {
	mu      sync.RWMutex
	byID    map[string]Account
	byEmail map[string]string
	now     func() time.Time
}

// NewMemoryAccountStore returns an empty store.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		byID:    make(map[string]Account),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func cloneAccount(a Account) Account {
	a.Roles = append([]string(nil), a.Roles...)
	return a
}

// CreateAccount stores account under its normalised email.
func (s *MemoryAccountStore) CreateAccount(_ context.Context, account Account) error {
	email := strings.ToLower(strings.TrimSpace(account.Email))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return ErrEmailAlreadyExists
	}
	account.Email = email
	s.byID[account.ID] = cloneAccount(account)
	s.byEmail[email] = account.ID
	return nil
}

// AccountByEmail looks an account up by email, ignoring case.
func (s *MemoryAccountStore) AccountByEmail(_ context.Context, email string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return cloneAccount(s.byID[id]), nil
}

// AccountByID looks an account up by id.
func (s *MemoryAccountStore) AccountByID(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

// UpdatePasswordHash replaces the stored hash of an account.
func (s *MemoryAccountStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.PasswordHash = hash
	a.UpdatedAt = s.now().UTC()
	s.byID[id] = a
	return nil
}

// SetDisabled enables or disables an account.
func (s *MemoryAccountStore) SetDisabled(_ context.Context, id string, disabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.Disabled = disabled
	a.UpdatedAt = s.now().UTC()
	s.byID[id] = a
	return nil
}

// SetRoles replaces the role set of an account.
func (s *MemoryAccountStore) SetRoles(_ context.Context, id string, roles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.Roles = append([]string(nil), roles...)
	a.UpdatedAt = s.now().UTC()
	s.byID[id] = a
	return nil
}

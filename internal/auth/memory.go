package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryUserStore keeps users in process memory. It backs USER_STORE=memory
// and the workflow tests.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
	now     func() time.Time
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    map[string]*User{},
		byEmail: map[string]string{},
		now:     time.Now,
	}
}

func (m *MemoryUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[email]
	if !ok {
		return nil, nil
	}
	return m.byID[id].clone(), nil
}

func (m *MemoryUserStore) FindByVerificationCode(_ context.Context, code string, now time.Time) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var match *User
	for _, u := range m.byID {
		if u.VerificationCode == nil || u.VerificationCodeExpiresAt == nil {
			continue
		}
		if *u.VerificationCode != code || !u.VerificationCodeExpiresAt.After(now) {
			continue
		}
		if match == nil || u.CreatedAt.Before(match.CreatedAt) {
			match = u
		}
	}
	if match == nil {
		return nil, nil
	}
	return match.clone(), nil
}

func (m *MemoryUserStore) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byEmail[u.Email]; taken {
		return ErrDuplicateEmail
	}
	now := m.now()
	u.CreatedAt = now
	u.UpdatedAt = now
	m.byID[u.ID] = u.clone()
	m.byEmail[u.Email] = u.ID
	return nil
}

func (m *MemoryUserStore) Update(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.byID[u.ID]
	if !ok {
		return ErrUserNotFound
	}
	if existing.Email != u.Email {
		if _, taken := m.byEmail[u.Email]; taken {
			return ErrDuplicateEmail
		}
		delete(m.byEmail, existing.Email)
		m.byEmail[u.Email] = u.ID
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = m.now()
	m.byID[u.ID] = u.clone()
	return nil
}

func (m *MemoryUserStore) ConsumeVerificationCode(_ context.Context, id, code string, now time.Time) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok || u.VerificationCode == nil || *u.VerificationCode != code {
		return nil, nil
	}
	if u.VerificationCodeExpiresAt == nil || !u.VerificationCodeExpiresAt.After(now) {
		return nil, nil
	}
	u.MarkVerified()
	u.UpdatedAt = m.now()
	return u.clone(), nil
}

// Len reports the number of stored users.
func (m *MemoryUserStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

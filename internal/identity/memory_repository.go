package identity

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu         sync.RWMutex
	identities map[string]Identity
}

// NewMemoryRepository builds an in-memory identity store for tests and local development.
func NewMemoryRepository() Repository {
	return &memoryRepository{identities: make(map[string]Identity)}
}

func (r *memoryRepository) Create(_ context.Context, ident Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.identities[ident.ID]; exists {
		return ErrDuplicate
	}
	for _, other := range r.identities {
		if ident.Email != "" && other.Email == ident.Email {
			return ErrDuplicate
		}
		if ident.Phone != "" && other.Phone == ident.Phone {
			return ErrDuplicate
		}
		if ident.Federated != nil && other.Federated != nil && *ident.Federated == *other.Federated {
			return ErrDuplicate
		}
	}
	r.identities[ident.ID] = ident.clone()
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ident, ok := r.identities[id]
	if !ok {
		return Identity{}, ErrNoRecord
	}
	return ident.clone(), nil
}

func (r *memoryRepository) FindByContact(_ context.Context, email, phone string) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if email != "" {
		for _, ident := range r.identities {
			if ident.Email == email {
				return ident.clone(), nil
			}
		}
	}
	if phone != "" {
		for _, ident := range r.identities {
			if ident.Phone == phone {
				return ident.clone(), nil
			}
		}
	}
	return Identity{}, ErrNoRecord
}

func (r *memoryRepository) FindByFederated(_ context.Context, providerID string, provider Provider) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ident := range r.identities {
		if ident.Federated != nil && ident.Federated.ProviderID == providerID && ident.Federated.Provider == provider {
			return ident.clone(), nil
		}
	}
	return Identity{}, ErrNoRecord
}

func (r *memoryRepository) ReplaceChallenge(_ context.Context, id string, ch Challenge, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.identities[id]
	if !ok || ident.Verified {
		return ErrStaleWrite
	}
	ident.Challenge = &ch
	ident.UpdatedAt = at
	r.identities[id] = ident
	return nil
}

func (r *memoryRepository) RecordMismatch(_ context.Context, id, code string, maxAttempts int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.identities[id]
	if !ok || ident.Verified || ident.Challenge == nil || ident.Challenge.Code != code {
		return false, ErrStaleWrite
	}
	ch := *ident.Challenge
	ch.Attempts++
	exhausted := ch.Attempts >= maxAttempts
	if exhausted {
		ident.Challenge = nil
	} else {
		ident.Challenge = &ch
	}
	r.identities[id] = ident
	return exhausted, nil
}

func (r *memoryRepository) CompleteVerification(_ context.Context, next Identity, expectedCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.identities[next.ID]
	if !ok || current.Verified || current.Challenge == nil || current.Challenge.Code != expectedCode {
		return ErrStaleWrite
	}
	current.Verified = true
	current.Challenge = nil
	current.PasswordHash = next.PasswordHash
	current.Role = next.Role
	current.Approved = next.Approved
	current.Driver = next.Driver
	current.UpdatedAt = next.UpdatedAt
	r.identities[next.ID] = current.clone()
	return nil
}

func (r *memoryRepository) UpdateDriverProfile(_ context.Context, id string, profile DriverProfile, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.identities[id]
	if !ok || ident.Role != RoleDriver {
		return ErrStaleWrite
	}
	ident.Driver = &profile
	ident.Approved = false
	ident.UpdatedAt = at
	r.identities[id] = ident
	return nil
}

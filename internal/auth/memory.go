package auth

import (
	"context"
	"sync"

	"edulingo.org/internal/apperr"
)

// MemoryAccounts implements AccountStore in process. It backs tests and
// DSN-less development runs with the same contract as the Postgres
// store.
type MemoryAccounts struct {
	mu      sync.RWMutex
	byID    map[string]*Account
	byPhone map[string]string
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{
		byID:    make(map[string]*Account),
		byPhone: make(map[string]string),
	}
}

var _ AccountStore = (*MemoryAccounts)(nil)

func (m *MemoryAccounts) Create(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byPhone[a.Phone]; exists {
		return apperr.Conflict("phone number already registered")
	}
	m.byID[a.ID] = cloneAccount(a)
	m.byPhone[a.Phone] = a.ID
	return nil
}

func (m *MemoryAccounts) FindByID(_ context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, apperr.NotFound("account not found")
	}
	return cloneAccount(a), nil
}

func (m *MemoryAccounts) FindByPhone(_ context.Context, phone string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPhone[phone]
	if !ok {
		return nil, apperr.NotFound("account not found")
	}
	return cloneAccount(m.byID[id]), nil
}

func (m *MemoryAccounts) Update(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.byID[a.ID]
	if !ok {
		return apperr.NotFound("account not found")
	}
	if existing.Phone != a.Phone {
		delete(m.byPhone, existing.Phone)
		m.byPhone[a.Phone] = a.ID
	}
	m.byID[a.ID] = cloneAccount(a)
	return nil
}

func (m *MemoryAccounts) Deactivate(_ context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var modified int64
	for _, id := range ids {
		a, ok := m.byID[id]
		if !ok || !a.IsActive {
			continue
		}
		a.IsActive = false
		modified++
	}
	return modified, nil
}

func (m *MemoryAccounts) FindByIDs(_ context.Context, ids []string) ([]*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Account, 0, len(ids))
	for _, id := range ids {
		if a, ok := m.byID[id]; ok {
			out = append(out, cloneAccount(a))
		}
	}
	return out, nil
}

// MemorySessions implements the refresh-token ledger in process.
type MemorySessions struct {
	mu   sync.Mutex
	byID map[string]*RefreshTokenRecord
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{byID: make(map[string]*RefreshTokenRecord)}
}

var _ SessionStore = (*MemorySessions)(nil)

func (m *MemorySessions) Insert(_ context.Context, rec *RefreshTokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[rec.ID] = cloneRecord(rec)
	return nil
}

func (m *MemorySessions) FindByAccountAndToken(_ context.Context, accountID, token string) (*RefreshTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.byID {
		if rec.AccountID == accountID && rec.Token == token {
			return cloneRecord(rec), nil
		}
	}
	return nil, apperr.NotFound("refresh token record not found")
}

// DeleteByID removes the record under the store lock, so concurrent
// rotations of the same token see exactly one true.
func (m *MemorySessions) DeleteByID(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return false, nil
	}
	delete(m.byID, id)
	return true, nil
}

func (m *MemorySessions) RevokeByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return apperr.NotFound("refresh token record not found")
	}
	rec.Revoked = true
	return nil
}

func (m *MemorySessions) RevokeAllByAccount(_ context.Context, accountID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, rec := range m.byID {
		if rec.AccountID == accountID && !rec.Revoked {
			rec.Revoked = true
			count++
		}
	}
	return count, nil
}

func (m *MemorySessions) FindNonRevokedByAccount(_ context.Context, accountID string) ([]*RefreshTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*RefreshTokenRecord
	for _, rec := range m.byID {
		if rec.AccountID == accountID && !rec.Revoked {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

func cloneAccount(a *Account) *Account {
	out := *a
	if a.PinID != nil {
		pin := *a.PinID
		out.PinID = &pin
	}
	if a.LastLogin != nil {
		t := *a.LastLogin
		out.LastLogin = &t
	}
	if a.DateOfBirth != nil {
		t := *a.DateOfBirth
		out.DateOfBirth = &t
	}
	return &out
}

func cloneRecord(rec *RefreshTokenRecord) *RefreshTokenRecord {
	out := *rec
	return &out
}

// Package profile bootstraps role-specific profile records after an
// account passes phone verification.
package profile

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"edulingo.org/internal/ids"
)

const (
	// defaultLevel and defaultPoints seed a fresh student profile.
	defaultLevel  = "Beginner"
	defaultPoints = 0
)

// Bootstrapper creates the default profile record for a newly verified
// account. Invoked synchronously exactly once per account.
type Bootstrapper interface {
	CreateDefaultProfile(ctx context.Context, accountID, role string) (profileID string, err error)
}

// PGBootstrapper persists profiles in Postgres.
type PGBootstrapper struct {
	db *sql.DB
}

func NewPGBootstrapper(db *sql.DB) *PGBootstrapper {
	return &PGBootstrapper{db: db}
}

func (b *PGBootstrapper) CreateDefaultProfile(ctx context.Context, accountID, role string) (string, error) {
	id := ids.New()
	switch role {
	case "student":
		_, err := b.db.ExecContext(ctx,
			`insert into students(id, account_id, level, points) values($1,$2,$3,$4)
			 on conflict (account_id) do nothing`,
			id, accountID, defaultLevel, defaultPoints,
		)
		if err != nil {
			return "", err
		}
	case "teacher":
		_, err := b.db.ExecContext(ctx,
			`insert into teachers(id, account_id, bio) values($1,$2,'')
			 on conflict (account_id) do nothing`,
			id, accountID,
		)
		if err != nil {
			return "", err
		}
	case "admin":
		// Admins carry no role profile.
		return "", nil
	default:
		return "", fmt.Errorf("profile: unknown role %q", role)
	}
	return id, nil
}

// Memory keeps profiles in process, mirroring the Postgres behavior for
// tests and DSN-less runs.
type Memory struct {
	mu       sync.Mutex
	profiles map[string]string // accountID -> profileID
	// FailWith, when set, is returned by CreateDefaultProfile. Lets
	// tests exercise the bootstrap failure path.
	FailWith error
}

func NewMemory() *Memory {
	return &Memory{profiles: make(map[string]string)}
}

func (m *Memory) CreateDefaultProfile(_ context.Context, accountID, role string) (string, error) {
	if m.FailWith != nil {
		return "", m.FailWith
	}
	if role == "admin" {
		return "", nil
	}
	if role != "student" && role != "teacher" {
		return "", fmt.Errorf("profile: unknown role %q", role)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.profiles[accountID]; ok {
		return id, nil
	}
	id := ids.New()
	m.profiles[accountID] = id
	return id, nil
}

// Has reports whether a profile exists for the account.
func (m *Memory) Has(accountID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.profiles[accountID]
	return ok
}

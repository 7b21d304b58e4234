package auth

import "context"

// AccountStore persists accounts. Implementations map storage-level
// uniqueness violations on phone to apperr Conflict.
type AccountStore interface {
	Create(ctx context.Context, a *Account) error
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByPhone(ctx context.Context, phone string) (*Account, error)
	Update(ctx context.Context, a *Account) error
	// Deactivate bulk-sets is_active=false and returns the number of
	// accounts that changed state.
	Deactivate(ctx context.Context, ids []string) (int64, error)
	FindByIDs(ctx context.Context, ids []string) ([]*Account, error)
}

// SessionStore is the refresh-token ledger.
type SessionStore interface {
	Insert(ctx context.Context, rec *RefreshTokenRecord) error
	// FindByAccountAndToken looks up a record by owner and the exact
	// token string the client presented.
	FindByAccountAndToken(ctx context.Context, accountID, token string) (*RefreshTokenRecord, error)
	// DeleteByID removes a record and reports whether it was still
	// present. Rotation relies on this feedback: of two concurrent
	// callers deleting the same record, exactly one observes true.
	DeleteByID(ctx context.Context, id string) (bool, error)
	RevokeByID(ctx context.Context, id string) error
	RevokeAllByAccount(ctx context.Context, accountID string) (int64, error)
	FindNonRevokedByAccount(ctx context.Context, accountID string) ([]*RefreshTokenRecord, error)
}

package auth

import "time"

// Role is the closed set of account roles.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// Gender values accepted on registration.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Account represents one end user. The phone number doubles as the
// login handle and is unique across all accounts.
type Account struct {
	ID           string
	Phone        string
	PasswordHash string
	Role         Role
	Name         string
	Avatar       string
	Gender       Gender
	DateOfBirth  *time.Time
	Address      string
	Country      string
	LastLogin    *time.Time
	IsVerified   bool
	IsActive     bool
	// PinID references the outstanding phone challenge, if any. Cleared
	// when verification succeeds.
	PinID     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PublicIdentity is the projection of an account exposed in bulk
// moderation responses.
type PublicIdentity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Role  Role   `json:"role"`
}

// Public returns the account's moderation projection.
func (a *Account) Public() PublicIdentity {
	return PublicIdentity{ID: a.ID, Name: a.Name, Phone: a.Phone, Role: a.Role}
}

// RefreshTokenRecord is the ledger's unit of truth for a live session.
// The token string is stored verbatim; lookups are by exact match.
type RefreshTokenRecord struct {
	ID        string
	AccountID string
	Token     string
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// TokenPair carries freshly issued access and refresh tokens along with
// their expirations.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

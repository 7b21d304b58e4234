package auth

import (
	"context"
	"strings"
	"time"

	"edulingo.org/internal/apperr"
	"edulingo.org/internal/ids"
	"edulingo.org/internal/otp"
	"edulingo.org/internal/profile"
)

// countryPrefix replaces a leading zero when dialing out through the
// challenge provider ("0912..." becomes "84912...").
const countryPrefix = "84"

// RegisterInput carries already-validated registration fields.
type RegisterInput struct {
	Phone       string
	Password    string
	Name        string
	Gender      Gender
	Avatar      string
	DateOfBirth *time.Time
	Address     string
	Country     string
}

// BanResult reports the outcome of a bulk suspension.
type BanResult struct {
	Modified int64            `json:"modified"`
	Banned   []PublicIdentity `json:"banned_accounts"`
}

// Service orchestrates registration, verification, login, token
// rotation and revocation on top of the account store, the session
// ledger, the challenge provider and the token codec.
type Service struct {
	accounts AccountStore
	sessions SessionStore
	provider otp.Provider
	profiles profile.Bootstrapper
	codec    *TokenCodec
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService wires the service from its collaborators.
func NewService(accounts AccountStore, sessions SessionStore, provider otp.Provider, profiles profile.Bootstrapper, codec *TokenCodec, opts ...ServiceOption) *Service {
	s := &Service{
		accounts: accounts,
		sessions: sessions,
		provider: provider,
		profiles: profiles,
		codec:    codec,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an unverified student account and dispatches exactly
// one phone challenge. No tokens are issued yet.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Account, error) {
	phone := strings.TrimSpace(in.Phone)
	if phone == "" || in.Password == "" {
		return nil, apperr.BadRequest("phone and password are required")
	}

	if _, err := s.accounts.FindByPhone(ctx, phone); err == nil {
		return nil, apperr.Conflict("phone number already registered")
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.Internal(err)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	now := s.now().UTC()
	account := &Account{
		ID:           ids.New(),
		Phone:        phone,
		PasswordHash: hash,
		Role:         RoleStudent,
		Name:         strings.TrimSpace(in.Name),
		Avatar:       in.Avatar,
		Gender:       in.Gender,
		DateOfBirth:  in.DateOfBirth,
		Address:      in.Address,
		Country:      in.Country,
		IsVerified:   false,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return nil, apperr.Conflict("phone number already registered")
		}
		return nil, apperr.Internal(err)
	}

	pinID, err := s.provider.Send(ctx, NormalizePhone(phone))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	account.PinID = &pinID
	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, apperr.Internal(err)
	}
	return account, nil
}

// VerifyChallenge confirms the code delivered to the phone, marks the
// account verified, bootstraps its role profile and issues the first
// token pair.
func (s *Service) VerifyChallenge(ctx context.Context, phone, code string) (*Account, TokenPair, error) {
	account, err := s.accounts.FindByPhone(ctx, strings.TrimSpace(phone))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, TokenPair{}, apperr.Conflict("phone number not registered")
		}
		return nil, TokenPair{}, apperr.Internal(err)
	}
	if account.IsVerified {
		return nil, TokenPair{}, apperr.BadRequest("account already verified")
	}
	if account.PinID == nil {
		return nil, TokenPair{}, apperr.BadRequest("no verification code was sent for this account")
	}

	ok, err := s.provider.Verify(ctx, *account.PinID, code)
	if err != nil {
		return nil, TokenPair{}, apperr.Internal(err)
	}
	if !ok {
		return nil, TokenPair{}, apperr.Unauthorized("invalid verification code")
	}

	account.IsVerified = true
	account.PinID = nil
	account.UpdatedAt = s.now().UTC()
	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, TokenPair{}, apperr.Internal(err)
	}

	if _, err := s.profiles.CreateDefaultProfile(ctx, account.ID, string(account.Role)); err != nil {
		return nil, TokenPair{}, apperr.Internal(err)
	}

	pair, err := s.issueAndRecord(ctx, account)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return account, pair, nil
}

// Login verifies credentials against a verified, active account and
// opens a new session. Prior sessions stay untouched, so concurrent
// devices keep working.
func (s *Service) Login(ctx context.Context, phone, password string) (*Account, TokenPair, error) {
	account, err := s.accounts.FindByPhone(ctx, strings.TrimSpace(phone))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, TokenPair{}, apperr.Conflict("phone number not registered")
		}
		return nil, TokenPair{}, apperr.Internal(err)
	}
	if !account.IsActive {
		return nil, TokenPair{}, apperr.Forbidden("account is suspended")
	}
	if !account.IsVerified {
		return nil, TokenPair{}, apperr.Unauthorized("account is not verified")
	}
	if err := VerifyPassword(account.PasswordHash, password); err != nil {
		return nil, TokenPair{}, apperr.Unauthorized("incorrect password")
	}

	now := s.now().UTC()
	account.LastLogin = &now
	account.UpdatedAt = now
	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, TokenPair{}, apperr.Internal(err)
	}

	pair, err := s.issueAndRecord(ctx, account)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return account, pair, nil
}

// Refresh rotates a refresh token: the presented record is deleted
// before its replacement is written, so each token can be redeemed at
// most once even under concurrent presentation.
func (s *Service) Refresh(ctx context.Context, oldRefreshToken string) (TokenPair, error) {
	claims, err := s.codec.VerifyRefresh(oldRefreshToken)
	if err != nil {
		if err == ErrTokenExpired {
			return TokenPair{}, apperr.Unauthorized("refresh token expired")
		}
		return TokenPair{}, apperr.Unauthorized("invalid refresh token")
	}

	account, err := s.stateCheckedAccount(ctx, claims.AccountID())
	if err != nil {
		return TokenPair{}, err
	}

	record, err := s.sessions.FindByAccountAndToken(ctx, account.ID, oldRefreshToken)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return TokenPair{}, apperr.Unauthorized("refresh token is not recognized")
		}
		return TokenPair{}, apperr.Internal(err)
	}
	if record.Revoked {
		return TokenPair{}, apperr.Unauthorized("refresh token has been revoked")
	}
	if s.now().After(record.ExpiresAt) {
		// Lazy expiry: drop the stale record on contact.
		if _, err := s.sessions.DeleteByID(ctx, record.ID); err != nil {
			return TokenPair{}, apperr.Internal(err)
		}
		return TokenPair{}, apperr.Unauthorized("refresh token expired, please log in again")
	}

	deleted, err := s.sessions.DeleteByID(ctx, record.ID)
	if err != nil {
		return TokenPair{}, apperr.Internal(err)
	}
	if !deleted {
		// A concurrent caller already rotated this token.
		return TokenPair{}, apperr.Unauthorized("refresh token is not recognized")
	}

	return s.issueAndRecord(ctx, account)
}

// Logout revokes the session identified by the refresh token. The
// record is kept as an audit trace and reuse-rejection anchor.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return apperr.BadRequest("refresh token is required")
	}
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		if err == ErrTokenExpired {
			return apperr.Unauthorized("refresh token expired")
		}
		return apperr.Unauthorized("invalid refresh token")
	}

	record, err := s.sessions.FindByAccountAndToken(ctx, claims.AccountID(), refreshToken)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.NotFound("refresh token does not exist or was removed")
		}
		return apperr.Internal(err)
	}
	if record.Revoked {
		return apperr.Unauthorized("refresh token was already revoked")
	}
	if err := s.sessions.RevokeByID(ctx, record.ID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// LogoutAll revokes every live session of the account and returns how
// many were live at the time of the call.
func (s *Service) LogoutAll(ctx context.Context, accountID string) (int, error) {
	if strings.TrimSpace(accountID) == "" {
		return 0, apperr.BadRequest("account reference is required")
	}
	records, err := s.sessions.FindNonRevokedByAccount(ctx, accountID)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	if len(records) == 0 {
		return 0, apperr.NotFound("no active sessions to log out")
	}
	if _, err := s.sessions.RevokeAllByAccount(ctx, accountID); err != nil {
		return 0, apperr.Internal(err)
	}
	return len(records), nil
}

// BanAccounts bulk-suspends accounts. The ledger is left untouched:
// outstanding refresh tokens die at the account-state check inside
// Refresh and the request gate.
func (s *Service) BanAccounts(ctx context.Context, accountIDs []string) (BanResult, error) {
	cleaned := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		if id = strings.TrimSpace(id); id != "" {
			cleaned = append(cleaned, id)
		}
	}
	if len(cleaned) == 0 {
		return BanResult{}, apperr.BadRequest("account id list is empty")
	}

	modified, err := s.accounts.Deactivate(ctx, cleaned)
	if err != nil {
		return BanResult{}, apperr.Internal(err)
	}
	accounts, err := s.accounts.FindByIDs(ctx, cleaned)
	if err != nil {
		return BanResult{}, apperr.Internal(err)
	}
	banned := make([]PublicIdentity, 0, len(accounts))
	for _, a := range accounts {
		banned = append(banned, a.Public())
	}
	return BanResult{Modified: modified, Banned: banned}, nil
}

// VerifyAccountState re-checks the live account behind verified claims.
// A valid access token is necessary but not sufficient: a ban or an
// unverified flag takes effect on the next request through here.
func (s *Service) VerifyAccountState(ctx context.Context, accountID string) (*Account, error) {
	return s.stateCheckedAccount(ctx, accountID)
}

func (s *Service) stateCheckedAccount(ctx context.Context, accountID string) (*Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("account does not exist")
		}
		return nil, apperr.Internal(err)
	}
	if !account.IsActive {
		return nil, apperr.Forbidden("account is suspended")
	}
	if !account.IsVerified {
		return nil, apperr.Unauthorized("account is not verified")
	}
	return account, nil
}

func (s *Service) issueAndRecord(ctx context.Context, account *Account) (TokenPair, error) {
	pair, err := s.codec.IssuePair(account.ID, account.Role)
	if err != nil {
		return TokenPair{}, apperr.Internal(err)
	}
	record := &RefreshTokenRecord{
		ID:        ids.New(),
		AccountID: account.ID,
		Token:     pair.RefreshToken,
		ExpiresAt: pair.RefreshExpiresAt,
		CreatedAt: s.now().UTC(),
	}
	if err := s.sessions.Insert(ctx, record); err != nil {
		return TokenPair{}, apperr.Internal(err)
	}
	return pair, nil
}

// NormalizePhone rewrites a local number into the dial format the
// challenge provider expects: a leading zero becomes the country
// prefix, an explicit plus is dropped.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if strings.HasPrefix(phone, "0") {
		return countryPrefix + phone[1:]
	}
	return strings.TrimPrefix(phone, "+")
}

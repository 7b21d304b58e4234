package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer     = "edulingo"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	// ErrTokenExpired indicates a well-formed token past its expiry.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid indicates a malformed token or a bad signature.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Claims is the signed payload carried inside each token.
type Claims struct {
	Role      Role   `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// AccountID returns the owning account's identifier.
func (c *Claims) AccountID() string { return c.Subject }

// TokenCodec signs and verifies access and refresh tokens. The two
// families use independent secrets so compromise of one does not
// compromise the other. Issuance has no side effects; persisting
// refresh tokens is the caller's responsibility.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) CodecOption {
	return func(c *TokenCodec) {
		if ttl > 0 {
			c.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) CodecOption {
	return func(c *TokenCodec) {
		if ttl > 0 {
			c.refreshTTL = ttl
		}
	}
}

// WithIssuer overrides the iss claim.
func WithIssuer(issuer string) CodecOption {
	return func(c *TokenCodec) {
		if s := strings.TrimSpace(issuer); s != "" {
			c.issuer = s
		}
	}
}

// WithCodecClock overrides the time source (tests).
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewTokenCodec constructs a codec from the two signing secrets.
func NewTokenCodec(accessSecret, refreshSecret string, opts ...CodecOption) (*TokenCodec, error) {
	accessSecret = strings.TrimSpace(accessSecret)
	refreshSecret = strings.TrimSpace(refreshSecret)
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("auth: both access and refresh secrets are required")
	}
	c := &TokenCodec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		issuer:        defaultIssuer,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RefreshTTL reports the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssuePair signs a fresh access/refresh pair for the account.
func (c *TokenCodec) IssuePair(accountID string, role Role) (TokenPair, error) {
	now := c.now().UTC()

	access, accessExp, err := c.sign(accountID, role, tokenTypeAccess, c.accessSecret, c.accessTTL, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := c.sign(accountID, role, tokenTypeRefresh, c.refreshSecret, c.refreshTTL, now)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess validates an access token and returns its claims.
func (c *TokenCodec) VerifyAccess(token string) (*Claims, error) {
	return c.verify(token, tokenTypeAccess, c.accessSecret)
}

// VerifyRefresh validates a refresh token and returns its claims.
func (c *TokenCodec) VerifyRefresh(token string) (*Claims, error) {
	return c.verify(token, tokenTypeRefresh, c.refreshSecret)
}

func (c *TokenCodec) sign(accountID string, role Role, typ string, secret []byte, ttl time.Duration, now time.Time) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := Claims{
		Role:      role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (c *TokenCodec) verify(token, typ string, secret []byte) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != typ {
		return nil, ErrTokenInvalid
	}
	if claims.Issuer != c.issuer {
		return nil, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenInvalid
	}
	if !claims.Role.Valid() {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"edulingo.org/internal/auth"
	"edulingo.org/internal/ids"
	"edulingo.org/internal/otp"
	"edulingo.org/internal/profile"
	"edulingo.org/internal/stream"
)

type testEnv struct {
	api      *API
	handler  http.Handler
	accounts *auth.MemoryAccounts
	codec    *auth.TokenCodec
	svc      *auth.Service
	provider *otp.Mock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	codec, err := auth.NewTokenCodec("access-secret", "refresh-secret")
	if err != nil {
		t.Fatal(err)
	}
	accounts := auth.NewMemoryAccounts()
	provider := otp.NewMock()
	svc := auth.NewService(accounts, auth.NewMemorySessions(), provider, profile.NewMemory(), codec)
	api := New(svc, codec, stream.New(), ReadyProbe{}, "test")
	return &testEnv{
		api:      api,
		handler:  api.Handler(),
		accounts: accounts,
		codec:    codec,
		svc:      svc,
		provider: provider,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestAuthLifecycle(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/v1/auth/register", map[string]any{
		"phone":    "0912345678",
		"password": "secret-1",
		"name":     "Test User",
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d (%s)", rec.Code, rec.Body)
	}

	// wrong code first
	rec = e.do(t, http.MethodPost, "/v1/auth/verify-otp", map[string]any{
		"phone": "0912345678",
		"code":  "0000",
	}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad code: expected 401, got %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/v1/auth/verify-otp", map[string]any{
		"phone": "0912345678",
		"code":  e.provider.Code(),
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d (%s)", rec.Code, rec.Body)
	}
	verified := decodeBody[sessionResponse](t, rec)
	if verified.Tokens.AccessToken == "" || verified.Tokens.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}

	rec = e.do(t, http.MethodPost, "/v1/auth/login", map[string]any{
		"phone":    "0912345678",
		"password": "secret-1",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (%s)", rec.Code, rec.Body)
	}
	session := decodeBody[sessionResponse](t, rec)

	rec = e.do(t, http.MethodPost, "/v1/auth/refresh", map[string]any{
		"refresh_token": session.Tokens.RefreshToken,
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d (%s)", rec.Code, rec.Body)
	}
	rotated := decodeBody[auth.TokenPair](t, rec)
	if rotated.RefreshToken == session.Tokens.RefreshToken {
		t.Fatal("refresh must rotate the token")
	}

	// the consumed token is dead
	rec = e.do(t, http.MethodPost, "/v1/auth/refresh", map[string]any{
		"refresh_token": session.Tokens.RefreshToken,
	}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("replay: expected 401, got %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/v1/auth/logout", map[string]any{
		"refresh_token": rotated.RefreshToken,
	}, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d (%s)", rec.Code, rec.Body)
	}
}

func TestRegisterDuplicatePhone(t *testing.T) {
	e := newTestEnv(t)

	body := map[string]any{"phone": "0912345678", "password": "secret-1"}
	if rec := e.do(t, http.MethodPost, "/v1/auth/register", body, ""); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/v1/auth/register", body, ""); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestVerifyUnknownPhone(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/v1/auth/verify-otp", map[string]any{
		"phone": "0999999999",
		"code":  "1234",
	}, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (%s)", rec.Code, rec.Body)
	}
}

func TestLoginRejectsUnknownFields(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/v1/auth/login", map[string]any{
		"phone":  "0912345678",
		"extra":  true,
		"fields": "nope",
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/v1/auth/login", nil, "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if got := rec.Header().Get("Allow"); got != http.MethodPost {
		t.Fatalf("unexpected Allow header: %q", got)
	}
}

func TestHealthAndInfo(t *testing.T) {
	e := newTestEnv(t)

	if rec := e.do(t, http.MethodGet, "/healthz", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/readyz", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("readyz: expected 200, got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/v1/info", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("info: expected 200, got %d", rec.Code)
	}
}

// seedAccount plants a verified account directly in the store and
// returns it with a signed access token.
func seedAccount(t *testing.T, e *testEnv, role auth.Role, phone string) (*auth.Account, string) {
	t.Helper()
	now := time.Now().UTC()
	acc := &auth.Account{
		ID:         ids.New(),
		Phone:      phone,
		Role:       role,
		Name:       "Seeded " + string(role),
		IsVerified: true,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.accounts.Create(context.Background(), acc); err != nil {
		t.Fatal(err)
	}
	pair, err := e.codec.IssuePair(acc.ID, acc.Role)
	if err != nil {
		t.Fatal(err)
	}
	return acc, pair.AccessToken
}

func TestMeRequiresBearer(t *testing.T) {
	e := newTestEnv(t)

	if rec := e.do(t, http.MethodGet, "/v1/auth/me", nil, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/v1/auth/me", nil, "garbage"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", rec.Code)
	}

	_, token := seedAccount(t, e, auth.RoleStudent, "0911111111")
	rec := e.do(t, http.MethodGet, "/v1/auth/me", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: expected 200, got %d (%s)", rec.Code, rec.Body)
	}
	me := decodeBody[accountView](t, rec)
	if me.Phone != "0911111111" {
		t.Fatalf("unexpected identity: %+v", me)
	}
}

func TestBanTakesEffectMidSession(t *testing.T) {
	e := newTestEnv(t)
	acc, token := seedAccount(t, e, auth.RoleStudent, "0911111111")
	_, adminToken := seedAccount(t, e, auth.RoleAdmin, "0922222222")

	if rec := e.do(t, http.MethodGet, "/v1/auth/me", nil, token); rec.Code != http.StatusOK {
		t.Fatalf("before ban: expected 200, got %d", rec.Code)
	}

	rec := e.do(t, http.MethodPost, "/v1/admin/accounts/ban", map[string]any{
		"account_ids": []string{acc.ID},
	}, adminToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("ban: expected 200, got %d (%s)", rec.Code, rec.Body)
	}
	result := decodeBody[auth.BanResult](t, rec)
	if result.Modified != 1 || len(result.Banned) != 1 {
		t.Fatalf("unexpected ban result: %+v", result)
	}

	// the still-valid access token no longer opens the door
	if rec := e.do(t, http.MethodGet, "/v1/auth/me", nil, token); rec.Code != http.StatusForbidden {
		t.Fatalf("after ban: expected 403, got %d", rec.Code)
	}
}

func TestAdminEndpointsRejectNonAdmins(t *testing.T) {
	e := newTestEnv(t)
	_, token := seedAccount(t, e, auth.RoleStudent, "0911111111")

	rec := e.do(t, http.MethodPost, "/v1/admin/accounts/ban", map[string]any{
		"account_ids": []string{"whoever"},
	}, token)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (%s)", rec.Code, rec.Body)
	}
}

func TestLogoutAllEndpoint(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/v1/auth/register", map[string]any{
		"phone":    "0912345678",
		"password": "secret-1",
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", rec.Code)
	}
	rec = e.do(t, http.MethodPost, "/v1/auth/verify-otp", map[string]any{
		"phone": "0912345678",
		"code":  e.provider.Code(),
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", rec.Code)
	}
	session := decodeBody[sessionResponse](t, rec)

	// one more device
	rec = e.do(t, http.MethodPost, "/v1/auth/login", map[string]any{
		"phone":    "0912345678",
		"password": "secret-1",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/v1/auth/logout-all", nil, session.Tokens.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout-all: expected 200, got %d (%s)", rec.Code, rec.Body)
	}
	out := decodeBody[map[string]int](t, rec)
	if out["revoked"] != 2 {
		t.Fatalf("expected 2 revoked sessions, got %d", out["revoked"])
	}

	// nothing left to revoke
	rec = e.do(t, http.MethodPost, "/v1/auth/logout-all", nil, session.Tokens.AccessToken)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second sweep: expected 404, got %d", rec.Code)
	}
}

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"edulingo.org/internal/apperr"
	"edulingo.org/internal/audit"
	"edulingo.org/internal/auth"
	"edulingo.org/internal/obs"
	"edulingo.org/internal/stream"
)

type registerRequest struct {
	Phone       string `json:"phone"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	Gender      string `json:"gender"`
	Avatar      string `json:"avatar"`
	DateOfBirth string `json:"date_of_birth"`
	Address     string `json:"address"`
	Country     string `json:"country"`
}

type verifyRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type banRequest struct {
	AccountIDs []string `json:"account_ids"`
}

type accountView struct {
	ID          string     `json:"id"`
	Phone       string     `json:"phone"`
	Name        string     `json:"name"`
	Role        auth.Role  `json:"role"`
	Avatar      string     `json:"avatar,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Address     string     `json:"address,omitempty"`
	Country     string     `json:"country,omitempty"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
	IsVerified  bool       `json:"is_verified"`
	IsActive    bool       `json:"is_active"`
}

func viewOf(acc *auth.Account) accountView {
	return accountView{
		ID:          acc.ID,
		Phone:       acc.Phone,
		Name:        acc.Name,
		Role:        acc.Role,
		Avatar:      acc.Avatar,
		Gender:      string(acc.Gender),
		DateOfBirth: acc.DateOfBirth,
		Address:     acc.Address,
		Country:     acc.Country,
		LastLogin:   acc.LastLogin,
		IsVerified:  acc.IsVerified,
		IsActive:    acc.IsActive,
	}
}

type sessionResponse struct {
	Account accountView    `json:"account"`
	Tokens  auth.TokenPair `json:"tokens"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	in := auth.RegisterInput{
		Phone:    req.Phone,
		Password: req.Password,
		Name:     strings.TrimSpace(req.Name),
		Gender:   auth.Gender(req.Gender),
		Avatar:   req.Avatar,
		Address:  req.Address,
		Country:  req.Country,
	}
	if raw := strings.TrimSpace(req.DateOfBirth); raw != "" {
		dob, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "date_of_birth must be YYYY-MM-DD")
			return
		}
		in.DateOfBirth = &dob
	}

	acc, err := a.svc.Register(r.Context(), in)
	if err != nil {
		obs.IncAuth("register", "error")
		writeAppError(w, r, err)
		return
	}
	obs.IncAuth("register", "ok")

	a.publish(stream.KindRegister, acc)
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"account_id": acc.ID,
		"phone":      audit.MaskPhone(acc.Phone),
	})

	writeJSON(w, http.StatusCreated, viewOf(acc))
}

func (a *API) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	acc, pair, err := a.svc.VerifyChallenge(r.Context(), req.Phone, req.Code)
	if err != nil {
		obs.IncAuth("verify", "error")
		writeAppError(w, r, err)
		return
	}
	obs.IncAuth("verify", "ok")

	a.publish(stream.KindVerified, acc)
	_ = audit.LogEvent(r.Context(), "auth.verify", map[string]any{
		"account_id": acc.ID,
		"phone":      audit.MaskPhone(acc.Phone),
	})

	writeJSON(w, http.StatusOK, sessionResponse{Account: viewOf(acc), Tokens: pair})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	acc, pair, err := a.svc.Login(r.Context(), req.Phone, req.Password)
	if err != nil {
		obs.IncAuth("login", "error")
		writeAppError(w, r, err)
		return
	}
	obs.IncAuth("login", "ok")

	a.publish(stream.KindLogin, acc)
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"account_id": acc.ID,
		"phone":      audit.MaskPhone(acc.Phone),
	})

	writeJSON(w, http.StatusOK, sessionResponse{Account: viewOf(acc), Tokens: pair})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := a.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		obs.IncAuth("refresh", "error")
		writeAppError(w, r, err)
		return
	}
	obs.IncAuth("refresh", "ok")

	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.svc.Logout(r.Context(), req.RefreshToken); err != nil {
		obs.IncAuth("logout", "error")
		writeAppError(w, r, err)
		return
	}
	obs.IncAuth("logout", "ok")

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing credentials")
		return
	}

	revoked, err := a.svc.LogoutAll(r.Context(), accountID)
	if err != nil {
		obs.IncAuth("logout_all", "error")
		writeAppError(w, r, err)
		return
	}
	obs.IncAuth("logout_all", "ok")

	_ = audit.LogEvent(r.Context(), "auth.logout_all", map[string]any{
		"account_id": accountID,
		"revoked":    revoked,
	})
	if a.stream != nil {
		a.stream.Publish(stream.Event{
			Kind:      stream.KindLogoutAll,
			AccountID: accountID,
			Timestamp: time.Now().UTC(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"revoked": revoked})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing credentials")
		return
	}

	acc, err := a.svc.VerifyAccountState(r.Context(), accountID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(acc))
}

func (a *API) handleBan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req banRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.svc.BanAccounts(r.Context(), req.AccountIDs)
	if err != nil {
		obs.IncAuth("ban", "error")
		writeAppError(w, r, err)
		return
	}
	obs.IncAuth("ban", "ok")

	_ = audit.LogEvent(r.Context(), "auth.ban", map[string]any{
		"account_ids": req.AccountIDs,
		"modified":    result.Modified,
	})
	if a.stream != nil {
		for _, banned := range result.Banned {
			a.stream.Publish(stream.Event{
				Kind:      stream.KindBan,
				AccountID: banned.ID,
				Phone:     audit.MaskPhone(banned.Phone),
				Role:      string(banned.Role),
				Timestamp: time.Now().UTC(),
			})
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func (a *API) publish(kind string, acc *auth.Account) {
	if a.stream == nil {
		return
	}
	a.stream.Publish(stream.Event{
		Kind:      kind,
		AccountID: acc.ID,
		Phone:     audit.MaskPhone(acc.Phone),
		Role:      string(acc.Role),
		Timestamp: time.Now().UTC(),
	})
}

// --- shared helpers ---

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// writeAppError maps service failures onto HTTP statuses without
// leaking internal details.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	writeError(w, r, apperr.HTTPStatus(kind), apperr.Public(err))
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

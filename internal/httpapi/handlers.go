package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"edulingo.org/internal/auth"
	"edulingo.org/internal/obs"
	"edulingo.org/internal/stream"
)

// ReadyProbe reports whether the API can serve traffic (DB reachable).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the auth service.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	codec      *auth.TokenCodec
	stream     *stream.Stream
	readyProbe ReadyProbe
	version    string
}

func New(svc *auth.Service, codec *auth.TokenCodec, st *stream.Stream, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		codec:      codec,
		stream:     st,
		readyProbe: rp,
		version:    version,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// public auth flows
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/verify-otp", a.handleVerifyOTP)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)

	// bearer-gated flows
	a.mux.Handle("/v1/auth/logout-all", a.requireAuth(http.HandlerFunc(a.handleLogoutAll)))
	a.mux.Handle("/v1/auth/me", a.requireAuth(http.HandlerFunc(a.handleMe)))

	// admin surface
	a.mux.Handle("/v1/admin/accounts/ban",
		a.requireAuth(a.requireRole(auth.RoleAdmin, http.HandlerFunc(a.handleBan))))
	a.mux.Handle("/v1/admin/events",
		a.requireAuth(a.requireRole(auth.RoleAdmin, http.HandlerFunc(a.Events))))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the instrumented root handler.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.mux)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "edulingo-auth",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "edulingo-auth",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

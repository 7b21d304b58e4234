package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"edulingo.org/internal/auth"
	"edulingo.org/internal/httpapi"
	"edulingo.org/internal/obs"
	"edulingo.org/internal/otp"
	"edulingo.org/internal/profile"
	"edulingo.org/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	accessSecret := os.Getenv("EDULINGO_AT_SECRET")
	refreshSecret := os.Getenv("EDULINGO_RT_SECRET")
	if accessSecret == "" || refreshSecret == "" {
		log.Fatal("EDULINGO_AT_SECRET and EDULINGO_RT_SECRET are required")
	}

	codecOpts := []auth.CodecOption{}
	if ttl := envDuration("EDULINGO_ACCESS_TTL"); ttl > 0 {
		codecOpts = append(codecOpts, auth.WithAccessTTL(ttl))
	}
	if ttl := envDuration("EDULINGO_REFRESH_TTL"); ttl > 0 {
		codecOpts = append(codecOpts, auth.WithRefreshTTL(ttl))
	}
	codec, err := auth.NewTokenCodec(accessSecret, refreshSecret, codecOpts...)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	// Storage: Postgres when a DSN is configured, in-memory otherwise
	// (local development and smoke runs).
	var (
		db       *sql.DB
		accounts auth.AccountStore
		sessions auth.SessionStore
		profiles profile.Bootstrapper
	)
	if dsn := os.Getenv("EDULINGO_PG_DSN"); dsn != "" {
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		accounts = auth.NewPGAccounts(db)
		sessions = auth.NewPGSessions(db)
		profiles = profile.NewPGBootstrapper(db)
	} else {
		log.Print("EDULINGO_PG_DSN not set, using in-memory stores")
		accounts = auth.NewMemoryAccounts()
		sessions = auth.NewMemorySessions()
		profiles = profile.NewMemory()
	}

	provider := buildProvider()
	svc := auth.NewService(accounts, sessions, provider, profiles, codec)

	api := httpapi.New(svc, codec, stream.New(), httpapi.ReadyProbe{DB: db}, version)

	handler := api.Handler()
	handler = httpapi.RateLimit(handler, envInt("EDULINGO_RATE_BURST", 20), envInt("EDULINGO_RATE_PER_SECOND", 10))
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.Logging(handler)
	handler = httpapi.RequestID(handler)

	addr := os.Getenv("EDULINGO_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // SSE connections stay open
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting edulingo-auth %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func buildProvider() otp.Provider {
	if os.Getenv("EDULINGO_OTP_PROVIDER") != "infobip" {
		log.Print("using mock challenge provider")
		return otp.NewMock()
	}
	p, err := otp.NewInfobip(otp.InfobipConfig{
		BaseURL:       os.Getenv("EDULINGO_INFOBIP_BASE_URL"),
		APIKey:        os.Getenv("EDULINGO_INFOBIP_API_KEY"),
		ApplicationID: os.Getenv("EDULINGO_INFOBIP_APP_ID"),
		MessageID:     os.Getenv("EDULINGO_INFOBIP_MSG_ID"),
	})
	if err != nil {
		log.Fatalf("infobip provider: %v", err)
	}
	return p
}

func envDuration(key string) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("%s: %v", key, err)
	}
	return d
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("%s: %v", key, err)
	}
	return v
}

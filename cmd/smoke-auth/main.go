// Command smoke-auth exercises a running API end to end: register,
// verify, login, rotate, replay the consumed token, logout. Requires
// the server to run with the mock challenge provider.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	Tokens tokenPair `json:"tokens"`
}

func main() {
	base := os.Getenv("EDULINGO_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	phone := fmt.Sprintf("09%08d", rand.New(rand.NewSource(time.Now().UnixNano())).Intn(100_000_000))
	password := "smoke-secret-1"

	post := func(path string, body, out any) int {
		payload, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal %s: %v", path, err)
		}
		resp, err := client.Post(base+path, "application/json", bytes.NewReader(payload))
		if err != nil {
			log.Fatalf("POST %s: %v", path, err)
		}
		defer resp.Body.Close()
		if out != nil && resp.StatusCode < 300 {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				log.Fatalf("decode %s: %v", path, err)
			}
		}
		return resp.StatusCode
	}

	if code := post("/v1/auth/register", map[string]any{
		"phone":    phone,
		"password": password,
		"name":     "Smoke Tester",
	}, nil); code != http.StatusCreated {
		log.Fatalf("register: unexpected status %d", code)
	}

	var verified sessionResponse
	if code := post("/v1/auth/verify-otp", map[string]any{
		"phone": phone,
		"code":  "1234",
	}, &verified); code != http.StatusOK {
		log.Fatalf("verify-otp: unexpected status %d", code)
	}

	var session sessionResponse
	if code := post("/v1/auth/login", map[string]any{
		"phone":    phone,
		"password": password,
	}, &session); code != http.StatusOK {
		log.Fatalf("login: unexpected status %d", code)
	}

	var rotated tokenPair
	if code := post("/v1/auth/refresh", map[string]any{
		"refresh_token": session.Tokens.RefreshToken,
	}, &rotated); code != http.StatusOK {
		log.Fatalf("refresh: unexpected status %d", code)
	}
	if rotated.RefreshToken == session.Tokens.RefreshToken {
		log.Fatal("refresh did not rotate the token")
	}

	// the consumed token must be dead
	if code := post("/v1/auth/refresh", map[string]any{
		"refresh_token": session.Tokens.RefreshToken,
	}, nil); code != http.StatusUnauthorized {
		log.Fatalf("replayed refresh: expected 401, got %d", code)
	}

	if code := post("/v1/auth/logout", map[string]any{
		"refresh_token": rotated.RefreshToken,
	}, nil); code != http.StatusNoContent {
		log.Fatalf("logout: unexpected status %d", code)
	}

	fmt.Printf("✅ auth smoke test passed: phone=%s\n", phone)
}

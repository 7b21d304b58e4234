package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfUnwrapsChains(t *testing.T) {
	base := Conflict("phone already registered")
	wrapped := fmt.Errorf("register: %w", base)

	if KindOf(wrapped) != KindConflict {
		t.Fatalf("expected Conflict kind, got %v", KindOf(wrapped))
	}
	if !Is(wrapped, KindConflict) {
		t.Fatal("Is should match through wrapping")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatal("plain errors must report KindUnknown")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindBadRequest:   http.StatusBadRequest,
		KindUnauthorized: http.StatusUnauthorized,
		KindForbidden:    http.StatusForbidden,
		KindNotFound:     http.StatusNotFound,
		KindConflict:     http.StatusConflict,
		KindInternal:     http.StatusInternalServerError,
		KindUnknown:      http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Fatalf("HTTPStatus(%v)=%d, want %d", kind, got, want)
		}
	}
}

func TestPublicHidesInternalDetail(t *testing.T) {
	err := Internal(errors.New("pq: connection refused"))
	if msg := Public(err); msg != "internal error" {
		t.Fatalf("internal cause leaked: %q", msg)
	}
	if msg := Public(Unauthorized("invalid refresh token")); msg != "invalid refresh token" {
		t.Fatalf("unexpected public message: %q", msg)
	}
	if !errors.Is(err, err.Err) {
		t.Fatal("wrapped cause must stay reachable for logging")
	}
}

package otp

import (
	"context"
	"strings"
	"sync"

	"edulingo.org/internal/ids"
)

// mockCode is the fixed 4-digit pin the mock provider accepts.
const mockCode = "1234"

// Mock is a deterministic in-memory Provider used in tests and in
// deployments without SMS credentials. It is created once per process
// and cleared only by restart or an explicit Reset.
type Mock struct {
	mu   sync.Mutex
	pins map[string]string
	code string
}

// NewMock returns a mock provider issuing the fixed code for every pin.
func NewMock() *Mock {
	return &Mock{
		pins: make(map[string]string),
		code: mockCode,
	}
}

// Send records an outstanding pin for the phone and returns its id.
func (m *Mock) Send(_ context.Context, phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrInvalidPhone
	}
	pinID := ids.New()

	m.mu.Lock()
	m.pins[pinID] = m.code
	m.mu.Unlock()

	return pinID, nil
}

// Verify compares the submitted code with the one stored for the pin.
// A mismatch leaves the pin outstanding.
func (m *Mock) Verify(_ context.Context, pinID, code string) (bool, error) {
	if strings.TrimSpace(pinID) == "" || strings.TrimSpace(code) == "" {
		return false, ErrInvalidArgs
	}

	m.mu.Lock()
	want, ok := m.pins[pinID]
	m.mu.Unlock()

	return ok && want == code, nil
}

// Code returns the fixed pin code the mock accepts.
func (m *Mock) Code() string { return m.code }

// Reset discards all outstanding pins.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.pins = make(map[string]string)
	m.mu.Unlock()
}

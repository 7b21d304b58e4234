// Package otp abstracts delivery and verification of phone challenges.
package otp

import (
	"context"
	"errors"
)

var (
	// ErrInvalidPhone rejects empty or malformed destination numbers.
	ErrInvalidPhone = errors.New("otp: invalid phone number")
	// ErrDeliveryFailed indicates the provider could not deliver a pin.
	ErrDeliveryFailed = errors.New("otp: delivery failed")
	// ErrInvalidArgs rejects empty pin id or code on verification.
	ErrInvalidArgs = errors.New("otp: pin id and code are required")
)

// Provider delivers challenges and verifies submitted codes.
//
// Send dispatches a pin to the given phone (E.164 without the plus,
// e.g. "84912345678") and returns the provider's pin identifier.
// Verify checks a submitted code against an outstanding pin; a wrong
// code returns (false, nil) and leaves the pin outstanding so the
// caller may retry.
type Provider interface {
	Send(ctx context.Context, phone string) (pinID string, err error)
	Verify(ctx context.Context, pinID, code string) (bool, error)
}

package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const smsStatusSent = "MESSAGE_SENT"

// InfobipConfig carries the 2FA application credentials.
type InfobipConfig struct {
	BaseURL       string
	APIKey        string
	ApplicationID string
	MessageID     string
	// HTTPClient is optional; a 10s-timeout client is used by default.
	HTTPClient *http.Client
}

// Infobip implements Provider against the Infobip 2FA REST API.
type Infobip struct {
	baseURL       string
	apiKey        string
	applicationID string
	messageID     string
	client        *http.Client
}

// NewInfobip constructs the provider.
func NewInfobip(cfg InfobipConfig) (*Infobip, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("otp: infobip base url and api key are required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Infobip{
		baseURL:       baseURL,
		apiKey:        cfg.APIKey,
		applicationID: cfg.ApplicationID,
		messageID:     cfg.MessageID,
		client:        client,
	}, nil
}

type sendPinRequest struct {
	ApplicationID string `json:"applicationId"`
	MessageID     string `json:"messageId"`
	From          string `json:"from"`
	To            string `json:"to"`
}

type sendPinResponse struct {
	PinID     string `json:"pinId"`
	To        string `json:"to"`
	NCStatus  string `json:"ncStatus"`
	SMSStatus string `json:"smsStatus"`
}

type verifyPinRequest struct {
	Pin string `json:"pin"`
}

type verifyPinResponse struct {
	PinID             string `json:"pinId"`
	MSISDN            string `json:"msisdn"`
	Verified          bool   `json:"verified"`
	AttemptsRemaining int    `json:"attemptsRemaining"`
	PinError          string `json:"pinError,omitempty"`
}

// Send dispatches a pin over SMS and returns the pin identifier needed
// for verification.
func (p *Infobip) Send(ctx context.Context, phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", ErrInvalidPhone
	}

	var resp sendPinResponse
	err := p.post(ctx, p.baseURL+"/2fa/2/pin", sendPinRequest{
		ApplicationID: p.applicationID,
		MessageID:     p.messageID,
		From:          "Infobip 2FA",
		To:            phone,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.SMSStatus != smsStatusSent {
		return "", fmt.Errorf("%w: sms status %s", ErrDeliveryFailed, resp.SMSStatus)
	}
	return resp.PinID, nil
}

// Verify submits a code for an outstanding pin.
func (p *Infobip) Verify(ctx context.Context, pinID, code string) (bool, error) {
	if strings.TrimSpace(pinID) == "" || strings.TrimSpace(code) == "" {
		return false, ErrInvalidArgs
	}

	var resp verifyPinResponse
	err := p.post(ctx, fmt.Sprintf("%s/2fa/2/pin/%s/verify", p.baseURL, pinID), verifyPinRequest{Pin: code}, &resp)
	if err != nil {
		return false, err
	}
	return resp.Verified, nil
}

func (p *Infobip) post(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "App "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("otp: infobip returned %d", res.StatusCode)
	}
	return json.Unmarshal(data, out)
}

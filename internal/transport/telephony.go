package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	appErrors "github.com/relayworks/outreach-backend/internal/errors"
)

// StartCallRequest asks the telephony provider to place an outbound call.
// The transcript and outcome arrive later on the callback URL.
type StartCallRequest struct {
	PhoneNumber string `json:"phone_number"`
	Script      string `json:"task"`
	FromNumber  string `json:"from,omitempty"`
	CallbackURL string `json:"webhook"`
}

// TelephonyClient starts provider calls; completion is webhook-driven.
type TelephonyClient interface {
	StartCall(ctx context.Context, req *StartCallRequest) (providerCallID string, err error)
}

// HTTPTelephonyClient talks to a Bland-style REST API.
type HTTPTelephonyClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func (c *HTTPTelephonyClient) StartCall(ctx context.Context, req *StartCallRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/calls", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.APIKey)

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", appErrors.E(appErrors.KindTransient, "telephony", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", appErrors.Ef(appErrors.KindAuth, "telephony", "provider rejected credentials (%d)", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", appErrors.Ef(appErrors.KindRateLimit, "telephony", "provider rate limited")
	case resp.StatusCode == http.StatusBadRequest:
		return "", appErrors.Ef(appErrors.KindPermanent, "telephony", "provider rejected call: %s", readBody(resp.Body))
	default:
		return "", appErrors.Ef(appErrors.KindTransient, "telephony", "provider returned %d", resp.StatusCode)
	}

	var out struct {
		CallID string `json:"call_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", appErrors.E(appErrors.KindTransient, "telephony", err)
	}
	if out.CallID == "" {
		return "", appErrors.Ef(appErrors.KindTransient, "telephony", "provider returned no call id")
	}
	return out.CallID, nil
}

var _ TelephonyClient = (*HTTPTelephonyClient)(nil)

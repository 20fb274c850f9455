package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	appErrors "github.com/relayworks/outreach-backend/internal/errors"
)

// LinkedInClient is the HTTP-integrator contract for LinkedIn outreach.
// accountID is the tenant's provider-side account handle.
type LinkedInClient interface {
	SendMessage(ctx context.Context, accountID, profileID, text string) (chatID string, err error)
	SendInvitation(ctx context.Context, accountID, profileID, text string) error
	SendInMail(ctx context.Context, accountID, profileID, text string) (chatID string, err error)
}

// HTTPLinkedInClient talks to a Unipile-style integrator API.
type HTTPLinkedInClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func (c *HTTPLinkedInClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.APIKey)

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return appErrors.E(appErrors.KindTransient, "linkedin", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
	case resp.StatusCode == http.StatusUnauthorized:
		return appErrors.Ef(appErrors.KindAuth, "linkedin", "account disconnected or credentials rejected")
	case resp.StatusCode == http.StatusTooManyRequests:
		return appErrors.Ef(appErrors.KindRateLimit, "linkedin", "provider rate limited")
	case resp.StatusCode == http.StatusNotFound:
		return appErrors.Ef(appErrors.KindPermanent, "linkedin", "profile not found")
	case resp.StatusCode >= 500:
		return appErrors.Ef(appErrors.KindTransient, "linkedin", "provider returned %d", resp.StatusCode)
	default:
		return appErrors.Ef(appErrors.KindPermanent, "linkedin", "provider returned %d: %s", resp.StatusCode, readBody(resp.Body))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return appErrors.E(appErrors.KindTransient, "linkedin", fmt.Errorf("malformed response: %w", err))
		}
	}
	return nil
}

func (c *HTTPLinkedInClient) SendMessage(ctx context.Context, accountID, profileID, text string) (string, error) {
	in := map[string]string{
		"account_id":   accountID,
		"attendee_id":  profileID,
		"text":         text,
	}
	var out struct {
		ChatID string `json:"chat_id"`
	}
	if err := c.post(ctx, "/api/v1/chats", in, &out); err != nil {
		return "", err
	}
	return out.ChatID, nil
}

func (c *HTTPLinkedInClient) SendInvitation(ctx context.Context, accountID, profileID, text string) error {
	in := map[string]string{
		"account_id":  accountID,
		"provider_id": profileID,
		"message":     text,
	}
	return c.post(ctx, "/api/v1/users/invite", in, nil)
}

func (c *HTTPLinkedInClient) SendInMail(ctx context.Context, accountID, profileID, text string) (string, error) {
	in := map[string]string{
		"account_id":  accountID,
		"attendee_id": profileID,
		"text":        text,
		"inmail":      "true",
	}
	var out struct {
		ChatID string `json:"chat_id"`
	}
	if err := c.post(ctx, "/api/v1/chats", in, &out); err != nil {
		return "", err
	}
	return out.ChatID, nil
}

var _ LinkedInClient = (*HTTPLinkedInClient)(nil)

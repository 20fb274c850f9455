package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	appErrors "github.com/relayworks/outreach-backend/internal/errors"
	"github.com/relayworks/outreach-backend/internal/model"
)

// EngagementSignals are passed to the generator so reminder tone can adapt.
type EngagementSignals struct {
	Opens  int `json:"opens"`
	Clicks int `json:"clicks"`
}

// ContentRequest is the input contract of the AI collaborator.
type ContentRequest struct {
	Lead     *model.Lead     `json:"lead"`
	Company  *model.Company  `json:"company"`
	Product  *model.Product  `json:"product,omitempty"`
	Campaign *model.Campaign `json:"campaign"`

	Insights    string            `json:"insights,omitempty"`
	Stage       string            `json:"stage"`
	StrategyTag string            `json:"strategy_tag,omitempty"`
	Engagement  EngagementSignals `json:"engagement_signals"`

	// Prior message, set on reminder stages so the follow-up can reference it.
	PriorSubject string `json:"prior_subject,omitempty"`
	PriorBody    string `json:"prior_body,omitempty"`
}

type EmailContent struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type LinkedInContent struct {
	Message    string `json:"message"`
	Invitation string `json:"invitation,omitempty"`
}

// ContentGenerator is the AI collaborator contract. Errors are classified:
// policy refusals are non-retryable, everything else is transient.
type ContentGenerator interface {
	EmailContent(ctx context.Context, req *ContentRequest) (*EmailContent, error)
	CallScript(ctx context.Context, req *ContentRequest) (string, error)
	LinkedInContent(ctx context.Context, req *ContentRequest) (*LinkedInContent, error)
	Insights(ctx context.Context, lead *model.Lead, company *model.Company) (string, error)
}

// HTTPContentGenerator talks to a chat-completions style generation service.
type HTTPContentGenerator struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func (g *HTTPContentGenerator) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.APIKey)

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return appErrors.E(appErrors.KindTransient, "content", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return appErrors.Ef(appErrors.KindRateLimit, "content", "generator rate limited")
	case resp.StatusCode == http.StatusUnprocessableEntity:
		// The generator refused the prompt; retrying the same input is useless.
		return appErrors.Ef(appErrors.KindContent, "content", "generator refused: %s", readBody(resp.Body))
	case resp.StatusCode >= 500:
		return appErrors.Ef(appErrors.KindTransient, "content", "generator returned %d", resp.StatusCode)
	default:
		return appErrors.Ef(appErrors.KindContent, "content", "generator returned %d: %s", resp.StatusCode, readBody(resp.Body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return appErrors.E(appErrors.KindContent, "content", fmt.Errorf("malformed generator response: %w", err))
	}
	return nil
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(b)
}

func (g *HTTPContentGenerator) EmailContent(ctx context.Context, req *ContentRequest) (*EmailContent, error) {
	var out EmailContent
	if err := g.post(ctx, "/generate/email", req, &out); err != nil {
		return nil, err
	}
	if out.Subject == "" || out.Body == "" {
		return nil, appErrors.Ef(appErrors.KindContent, "content", "generator returned empty email content")
	}
	return &out, nil
}

func (g *HTTPContentGenerator) CallScript(ctx context.Context, req *ContentRequest) (string, error) {
	var out struct {
		Script string `json:"script"`
	}
	if err := g.post(ctx, "/generate/call", req, &out); err != nil {
		return "", err
	}
	if out.Script == "" {
		return "", appErrors.Ef(appErrors.KindContent, "content", "generator returned empty call script")
	}
	return out.Script, nil
}

func (g *HTTPContentGenerator) LinkedInContent(ctx context.Context, req *ContentRequest) (*LinkedInContent, error) {
	var out LinkedInContent
	if err := g.post(ctx, "/generate/linkedin", req, &out); err != nil {
		return nil, err
	}
	if out.Message == "" {
		return nil, appErrors.Ef(appErrors.KindContent, "content", "generator returned empty linkedin message")
	}
	return &out, nil
}

func (g *HTTPContentGenerator) Insights(ctx context.Context, lead *model.Lead, company *model.Company) (string, error) {
	var out struct {
		Insights string `json:"insights"`
	}
	in := struct {
		Lead    *model.Lead    `json:"lead"`
		Company *model.Company `json:"company"`
	}{lead, company}
	if err := g.post(ctx, "/insights", &in, &out); err != nil {
		return "", err
	}
	return out.Insights, nil
}

var _ ContentGenerator = (*HTTPContentGenerator)(nil)

package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dealerdesk/internal/errs"
)

// Provider is the outbound CRM boundary
type Provider interface {
	UpsertContact(ctx context.Context, contact Contact) error
	UpsertDeal(ctx context.Context, deal Deal) error
	RecordActivity(ctx context.Context, activity Activity) error
}

// HTTPProvider talks to a REST-style CRM API
type HTTPProvider struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPProvider creates a provider for the given CRM endpoint
func NewHTTPProvider(baseURL, token string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// UpsertContact implements Provider
func (p *HTTPProvider) UpsertContact(ctx context.Context, contact Contact) error {
	return p.makeRequest(ctx, "PUT", "/api/v1/contacts/"+contact.ExternalID, contact)
}

// UpsertDeal implements Provider
func (p *HTTPProvider) UpsertDeal(ctx context.Context, deal Deal) error {
	return p.makeRequest(ctx, "PUT", "/api/v1/deals/"+deal.ExternalID, deal)
}

// RecordActivity implements Provider
func (p *HTTPProvider) RecordActivity(ctx context.Context, activity Activity) error {
	return p.makeRequest(ctx, "POST", "/api/v1/activities", activity)
}

func (p *HTTPProvider) makeRequest(ctx context.Context, method, endpoint string, payload interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return errs.Transient(method+" "+endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	reqErr := fmt.Errorf("CRM returned %d: %s", resp.StatusCode, string(body))

	// 5xx and 429 are worth retrying, everything else is terminal.
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return errs.Transient(method+" "+endpoint, reqErr)
	}
	return reqErr
}

package mediator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPMediator calls the mediation capability over HTTP.
//
// POST {baseURL}/v1/mediations  with Evidence  -> {"options": [3]Proposal}
// POST {baseURL}/v1/decisions   with Evidence  -> {"decision": Decision}
type HTTPMediator struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTP creates an HTTP-backed mediator with a bounded request timeout.
func NewHTTP(baseURL, apiKey string, timeout time.Duration) *HTTPMediator {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &HTTPMediator{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (m *HTTPMediator) ProposeOptions(ctx context.Context, ev Evidence) ([]Proposal, error) {
	var resp struct {
		Options []Proposal `json:"options"`
	}
	if err := m.post(ctx, "/v1/mediations", ev, &resp); err != nil {
		return nil, err
	}
	if err := ValidateProposals(resp.Options, ev.AmountCents); err != nil {
		return nil, err
	}
	return resp.Options, nil
}

func (m *HTTPMediator) IssueDecision(ctx context.Context, ev Evidence) (Decision, error) {
	var resp struct {
		Decision Decision `json:"decision"`
	}
	if err := m.post(ctx, "/v1/decisions", ev, &resp); err != nil {
		return Decision{}, err
	}
	if err := ValidateDecision(resp.Decision, ev.AmountCents); err != nil {
		return Decision{}, err
	}
	return resp.Decision, nil
}

func (m *HTTPMediator) post(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Compile-time assertion that HTTPMediator implements Mediator.
var _ Mediator = (*HTTPMediator)(nil)

package paygate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Status is the gateway's view of one payment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Ticket links a payment at the gateway to the flow step that created it.
// It lives in the owning session's attributes, never in its own table.
type Ticket struct {
	Ref     string
	URL     string
	Amount  int
	Purpose string
}

// Gateway is the external payment collaborator. Status is a pure poll with
// no side effects; callers may re-check as often as they like.
type Gateway interface {
	Create(ctx context.Context, amount int, purpose string) (Ticket, error)
	Status(ctx context.Context, ref string) (Status, error)
}

// Config holds the HTTP gateway's endpoint settings.
type Config struct {
	BaseURL string `yaml:"base_url" envconfig:"PAYMENT_BASE_URL"`
	Token   string `yaml:"token" envconfig:"PAYMENT_TOKEN"`
	Timeout int    `yaml:"timeout_seconds" envconfig:"PAYMENT_TIMEOUT_SECONDS"`
}

type httpGateway struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPGateway constructs a Gateway speaking the provider's JSON API.
func NewHTTPGateway(cfg Config) Gateway {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &httpGateway{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *httpGateway) Create(ctx context.Context, amount int, purpose string) (Ticket, error) {
	body, err := json.Marshal(map[string]any{"amount": amount, "description": purpose})
	if err != nil {
		return Ticket{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return Ticket{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.client.Do(req)
	if err != nil {
		return Ticket{}, fmt.Errorf("create payment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Ticket{}, fmt.Errorf("create payment: gateway returned %d", resp.StatusCode)
	}

	var out struct {
		ID  string `json:"id"`
		URL string `json:"confirmation_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Ticket{}, fmt.Errorf("create payment: decode response: %w", err)
	}
	return Ticket{Ref: out.ID, URL: out.URL, Amount: amount, Purpose: purpose}, nil
}

func (g *httpGateway) Status(ctx context.Context, ref string) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/payments/"+ref, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("payment status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("payment status: gateway returned %d", resp.StatusCode)
	}

	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("payment status: decode response: %w", err)
	}
	switch Status(out.Status) {
	case StatusPending, StatusSucceeded, StatusFailed:
		return Status(out.Status), nil
	case "waiting_for_capture":
		return StatusPending, nil
	case "canceled":
		return StatusFailed, nil
	default:
		return "", fmt.Errorf("payment status: unknown status %q", out.Status)
	}
}

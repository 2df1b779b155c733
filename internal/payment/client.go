// Package payment предоставляет клиент платёжного шлюза для покупки монет.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrSessionNotFound возвращается, если шлюз не знает сессию.
var ErrSessionNotFound = errors.New("checkout session not found")

// SessionStatus описывает состояние сессии оплаты в шлюзе.
type SessionStatus string

const (
	SessionOpen    SessionStatus = "open"
	SessionPaid    SessionStatus = "paid"
	SessionExpired SessionStatus = "expired"
	SessionFailed  SessionStatus = "failed"
)

// CheckoutRequest описывает создаваемую сессию оплаты.
type CheckoutRequest struct {
	Reference   string `json:"client_reference_id"`
	AmountCents int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

// Session описывает сессию оплаты в шлюзе.
type Session struct {
	ID        string        `json:"id"`
	Status    SessionStatus `json:"status"`
	URL       string        `json:"url"`
	Reference string        `json:"client_reference_id"`
}

// Client инкапсулирует HTTP-взаимодействие с платёжным шлюзом.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт HTTP-клиент платёжного шлюза по указанному адресу.
func NewClient(baseURL, apiKey string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// CreateCheckoutSession создаёт сессию оплаты и возвращает ссылку на неё.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*Session, error) {
	if req.Currency == "" {
		req.Currency = "usd"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var session Session
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", bytes.NewReader(body), &session); err != nil {
		return nil, err
	}
	if session.ID == "" {
		return nil, errors.New("gateway returned session without id")
	}
	return &session, nil
}

// GetSession возвращает текущее состояние сессии оплаты.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(id), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) do(ctx context.Context, method, path string, body *bytes.Reader, out any) error {
	if c == nil || c.baseURL == "" {
		return errors.New("payment client not configured")
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrSessionNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

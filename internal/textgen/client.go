// Package textgen предоставляет клиент сервиса генерации текста.
package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 300
)

// Client обращается к сервису генерации текста с совместимым chat completions API.
// Число запросов ограничивается локальным лимитером.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	limiter    *rate.Limiter
	httpClient *http.Client
}

// Option настраивает Client.
type Option func(*Client)

// WithModel задаёт имя модели.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithRateLimit задаёт допустимую частоту запросов.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// NewClient создаёт клиент сервиса генерации текста.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	c := &Client{
		baseURL: base,
		apiKey:  apiKey,
		model:   defaultModel,
		limiter: rate.NewLimiter(rate.Limit(2), 4),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Generate возвращает текст, сгенерированный по запросу.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", errors.New("text generation client not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	body, err := json.Marshal(completionRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: "You write concise descriptions for fundraising campaigns."},
			{Role: "user", Content: prompt},
		},
		MaxTokens: defaultMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("empty completion")
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

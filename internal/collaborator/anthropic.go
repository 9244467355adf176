// Package collaborator provides a concrete planner.Collaborator /
// fleet.Collaborator implementation against the Anthropic Messages API.
//
// Grounded on _examples/everydev1618-govega/llm/anthropic.go: a hand-rolled
// net/http client (no Anthropic SDK appears anywhere in the retrieval pack,
// so this follows govega's own choice rather than introducing one),
// single-turn request/response shape, and the retry-on-429/529 backoff.
// Trimmed to the single-turn text completion the Planner and Fleet
// Coordinator actually need — no streaming, no tool-use blocks, no prompt
// caching.
package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
)

const (
	defaultBaseURL    = "https://api.anthropic.com"
	defaultModel      = "claude-sonnet-4-20250514"
	defaultMaxTokens  = 4096
	defaultTimeout    = 2 * time.Minute
	anthropicVersion  = "2023-06-01"
	maxRetryAttempts  = 5
)

// Anthropic is a single-turn Collaborator backed by the Anthropic Messages
// API. It satisfies both internal/planner.Collaborator and
// internal/fleet.Collaborator (identical one-method shape).
type Anthropic struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// Option configures an Anthropic collaborator.
type Option func(*Anthropic)

// WithAPIKey overrides the ANTHROPIC_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(a *Anthropic) { a.apiKey = key }
}

// WithModel overrides the default model ID.
func WithModel(model string) Option {
	return func(a *Anthropic) { a.model = model }
}

// WithHTTPClient overrides the default HTTP client (e.g. for test doubles).
func WithHTTPClient(client *http.Client) Option {
	return func(a *Anthropic) { a.httpClient = client }
}

// New creates an Anthropic collaborator, defaulting to the
// ANTHROPIC_API_KEY environment variable and claude-sonnet-4-20250514.
func New(opts ...Option) *Anthropic {
	a := &Anthropic{
		apiKey:    os.Getenv("ANTHROPIC_API_KEY"),
		baseURL:   defaultBaseURL,
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type messagesRequest struct {
	Model     string           `json:"model"`
	MaxTokens int              `json:"max_tokens"`
	Messages  []messagesTurn   `json:"messages"`
}

type messagesTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete sends prompt as a single user turn and returns the concatenated
// text content of the reply.
func (a *Anthropic) Complete(ctx context.Context, prompt string) (string, error) {
	if a.apiKey == "" {
		return "", fmt.Errorf("collaborator: ANTHROPIC_API_KEY is not set")
	}

	req := &messagesRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages:  []messagesTurn{{Role: "user", Content: prompt}},
	}

	resp, err := a.doRequest(ctx, req)
	if err != nil {
		return "", err
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

func (a *Anthropic) doRequest(ctx context.Context, req *messagesRequest) (*messagesResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("collaborator: marshal request: %w", err)
	}

	for attempt := 0; attempt <= maxRetryAttempts; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("collaborator: build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", a.apiKey)
		httpReq.Header.Set("anthropic-version", anthropicVersion)

		httpResp, err := a.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("collaborator: request: %w", err)
		}

		respBody, err := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("collaborator: read response: %w", err)
		}

		if httpResp.StatusCode == http.StatusOK {
			var out messagesResponse
			if err := json.Unmarshal(respBody, &out); err != nil {
				return nil, fmt.Errorf("collaborator: unmarshal response: %w", err)
			}
			return &out, nil
		}

		if (httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode == 529) && attempt < maxRetryAttempts {
			select {
			case <-time.After(retryDelay(httpResp, attempt)):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		return nil, fmt.Errorf("collaborator: API error %d: %s", httpResp.StatusCode, string(respBody))
	}

	return nil, fmt.Errorf("collaborator: max retries exceeded")
}

// retryDelay honors a retry-after header, falling back to exponential
// backoff capped at 60s.
func retryDelay(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("retry-after"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	wait := time.Duration(2<<uint(attempt)) * time.Second
	if wait > 60*time.Second {
		wait = 60 * time.Second
	}
	return wait
}

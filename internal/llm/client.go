// Package llm drives an OpenAI-compatible chat completions API with tool
// definitions. The orchestration loop sees only the Client interface; the
// HTTP implementation handles auth, rate-limit backoff, and the model
// fallback chain.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"shiftbot/internal/auth"
	"shiftbot/internal/config"
	"shiftbot/internal/fault"
	"shiftbot/internal/logging"
)

// minRequestSpacing keeps bursts of short turns from tripping provider
// rate limits.
const minRequestSpacing = 100 * time.Millisecond

// maxResponseBytes bounds the in-memory copy of a completion response.
const maxResponseBytes = 4 << 20

// Client is the reasoning engine as seen by the orchestration loop.
type Client interface {
	// Complete sends the transcript and tool declarations, returning the
	// model's next turn.
	Complete(ctx context.Context, messages []Message, tools []Tool) (*Completion, error)
	// Model returns the configured primary model name.
	Model() string
}

// TokenSource yields the bearer token attached to each request. A static
// API key and the OAuth token manager both satisfy it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken adapts a fixed API key to the TokenSource interface.
type StaticToken string

// Token returns the key itself.
func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", fault.Configf("llm api key is empty")
	}
	return string(s), nil
}

// HTTPClient talks to an OpenAI-compatible chat completions endpoint.
type HTTPClient struct {
	baseURL     string
	model       string
	fallbacks   []string
	temperature float64
	maxTokens   int
	retries     int
	backoff     time.Duration
	httpClient  *http.Client
	tokens      TokenSource
	log         *zap.SugaredLogger

	mu          sync.Mutex
	lastRequest time.Time
}

var _ Client = (*HTTPClient)(nil)

// New builds the client from configuration. tokens supplies the bearer
// for each request.
func New(cfg *config.Config, tokens TokenSource) *HTTPClient {
	return &HTTPClient{
		baseURL:     cfg.LLM.BaseURL,
		model:       cfg.LLM.Model,
		fallbacks:   cfg.LLM.FallbackModels,
		temperature: cfg.LLM.Temperature,
		maxTokens:   cfg.LLM.MaxTokens,
		retries:     3,
		backoff:     time.Second,
		httpClient:  &http.Client{Timeout: cfg.GetLLMTimeout()},
		tokens:      tokens,
		log:         logging.L("llm"),
	}
}

// NewFromConfig wires the token source implied by llm.auth_mode and
// returns the client.
func NewFromConfig(cfg *config.Config) (*HTTPClient, error) {
	switch cfg.LLM.AuthMode {
	case "oauth":
		tm := auth.NewTokenManager(config.ExpandHome(cfg.LLM.TokenFile))
		return New(cfg, tm), nil
	default:
		if cfg.LLM.APIKey == "" {
			return nil, fault.Configf("llm.api_key is required in api_key mode")
		}
		return New(cfg, StaticToken(cfg.LLM.APIKey)), nil
	}
}

// Model returns the configured primary model.
func (c *HTTPClient) Model() string {
	return c.model
}

// Complete sends the transcript and tools, retrying transport failures and
// rate limits with exponential backoff, then advancing through the model
// fallback chain when a model fails terminally.
func (c *HTTPClient) Complete(ctx context.Context, messages []Message, tools []Tool) (*Completion, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	c.throttle()

	models := c.models()
	var lastErr error
	for mi, model := range models {
		for attempt := 0; attempt <= c.retries; attempt++ {
			if attempt > 0 {
				wait := c.backoff * time.Duration(1<<uint(attempt-1))
				c.log.Debugw("retrying completion", "model", model, "attempt", attempt, "wait", wait)
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, fault.Transport("chat completion", ctx.Err())
				}
			}

			completion, retryable, err := c.completeOnce(ctx, model, messages, tools)
			if err == nil {
				return completion, nil
			}
			lastErr = err
			if !retryable {
				break
			}
		}
		if mi < len(models)-1 {
			c.log.Warnw("model failed, advancing to fallback",
				"model", model, "next", models[mi+1], "error", lastErr)
		}
	}
	return nil, fmt.Errorf("all completion attempts failed: %w", lastErr)
}

// models is the primary model followed by its fallbacks, deduplicated.
func (c *HTTPClient) models() []string {
	models := make([]string, 0, 1+len(c.fallbacks))
	models = append(models, c.model)
	for _, m := range c.fallbacks {
		if m != "" && m != c.model {
			models = append(models, m)
		}
	}
	return models
}

// throttle enforces the minimum spacing between requests.
func (c *HTTPClient) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if wait := minRequestSpacing - time.Since(c.lastRequest); wait > 0 {
		time.Sleep(wait)
	}
	c.lastRequest = time.Now()
}

// completeOnce performs a single request against one model. The second
// return reports whether the failure is worth retrying on the same model:
// network errors, 429s, and 5xx are; everything else is terminal.
func (c *HTTPClient) completeOnce(ctx context.Context, model string, messages []Message, tools []Tool) (*Completion, bool, error) {
	reqBody := chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	if len(tools) > 0 {
		reqBody.Tools = tools
		reqBody.ToolChoice = "auto"
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, false, fmt.Errorf("encoding completion request: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("building completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fault.Transport("chat completion", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, true, fault.Transport("chat completion", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("rate limited (429): %s", strings.TrimSpace(string(body)))
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("service error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("request rejected (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, false, fmt.Errorf("decoding completion: %w", err)
	}
	if decoded.Error != nil {
		return nil, false, fmt.Errorf("completion error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return nil, false, fmt.Errorf("no completion returned")
	}

	choice := decoded.Choices[0]
	completion := &Completion{
		Text:         choice.Message.Content,
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: choice.FinishReason,
		Model:        model,
		Usage:        decoded.Usage,
	}

	c.log.Debugw("completion received",
		"model", model,
		"duration", time.Since(start),
		"finish_reason", completion.FinishReason,
		"tool_calls", len(completion.ToolCalls),
		"total_tokens", decoded.Usage.TotalTokens)
	return completion, false, nil
}

// Package ai is a small client for the Claude Messages API. It serves as
// both the classification service and the query service of the pipeline.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultModel     = "claude-haiku-4-5"
	defaultMaxTokens = 1024
	defaultBaseURL   = "https://api.anthropic.com"
	messagesPath     = "/v1/messages"
	apiVersion       = "2023-06-01"
)

// Config configures a Client.
type Config struct {
	Model     string
	MaxTokens int

	// BaseURL is the API origin; tests point it at an httptest server.
	BaseURL string

	// ServiceVersion tags cache entries produced through this client.
	// It defaults to Model.
	ServiceVersion string

	// RequestsPerSecond limits outgoing requests. Zero means unlimited.
	RequestsPerSecond float64

	Retry RetryConfig
}

// Client calls the Claude Messages API. It is safe for concurrent use.
type Client struct {
	apiKey         string
	baseURL        string
	model          string
	maxTokens      int
	serviceVersion string
	client         *http.Client
	limiter        *rate.Limiter
	retry          RetryConfig
	logger         zerolog.Logger
}

// New creates a Claude client with the given configuration.
func New(apiKey string, cfg Config, logger zerolog.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = cfg.Model
	}

	c := &Client{
		apiKey:         apiKey,
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		model:          cfg.Model,
		maxTokens:      cfg.MaxTokens,
		serviceVersion: cfg.ServiceVersion,
		client:         &http.Client{},
		retry:          cfg.Retry,
		logger:         logger.With().Str("component", "ai").Logger(),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// ServiceVersion returns the tag stored with cache entries.
func (c *Client) ServiceVersion() string { return c.serviceVersion }

// APIError is a non-200 response from the Messages API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("API error (%d %s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed if sent again.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// completion is the text of one response plus what it cost.
type completion struct {
	Text string
	Cost float64
}

// complete sends a single-turn prompt and returns the concatenated text
// blocks of the reply, retrying transient failures within ctx.
func (c *Client) complete(ctx context.Context, system, prompt string, maxTokens int) (completion, error) {
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	reqBody := apiRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages: []apiMessage{{
			Role:    "user",
			Content: []apiContentBlock{{Type: "text", Text: prompt}},
		}},
	}

	var resp *apiResponse
	err := withRetry(ctx, c.retry, c.logger, func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("waiting for rate limiter: %w", err)
			}
		}
		var err error
		resp, err = c.callAPI(ctx, reqBody)
		return err
	})
	if err != nil {
		return completion{}, err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	cost := usageCost(resp.Model, resp.Usage)
	c.logger.Debug().
		Str("model", resp.Model).
		Int("input_tokens", resp.Usage.InputTokens).
		Int("output_tokens", resp.Usage.OutputTokens).
		Float64("cost_usd", cost).
		Msg("completion received")

	return completion{Text: sb.String(), Cost: cost}, nil
}

// callAPI makes a single request to the Claude Messages API.
func (c *Client) callAPI(ctx context.Context, reqBody apiRequest) (*apiResponse, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var body apiErrorResponse
		if json.Unmarshal(respBody, &body) == nil && body.Error.Message != "" {
			apiErr.Type = body.Error.Type
			apiErr.Message = body.Error.Message
		}
		return nil, apiErr
	}

	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	c.logger.Trace().Dur("elapsed", time.Since(start)).Str("stop_reason", result.StopReason).Msg("API call finished")
	return &result, nil
}

// isRetryable reports whether err is worth another attempt. Cancellation
// and deadline errors never are: the caller's budget is spent.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// --- Claude API types ---

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string            `json:"role"`
	Content []apiContentBlock `json:"content"`
}

type apiContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

type apiResponse struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Role       string            `json:"role"`
	Content    []apiContentBlock `json:"content"`
	Model      string            `json:"model"`
	StopReason string            `json:"stop_reason"`
	Usage      apiUsage          `json:"usage"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

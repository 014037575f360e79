package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fleetcare/internal/types"
)

// maxAdvisoryBytes caps how much of an advisory response is read.
const maxAdvisoryBytes = 64 << 10

// AdvisoryClientConfig holds the configuration for creating an AdvisoryClient.
type AdvisoryClientConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	// Breaker overrides the default circuit breaker (5 failures, 1m open).
	Breaker BreakerSettings
	Logger  *slog.Logger
}

type advisoryRequest struct {
	Model     string `json:"model,omitempty"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

type advisoryResponse struct {
	Text string `json:"text"`
}

// AdvisoryClient requests a narrative for a risk summary from a text
// generation service. Its output is supplementary; callers treat every
// error as non-fatal.
type AdvisoryClient struct {
	base      *BaseClient
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	logger    *slog.Logger
}

// NewAdvisoryClient creates an AdvisoryClient. The httpClient timeout bounds
// each attempt; callers bound the whole call with their context.
func NewAdvisoryClient(httpClient *http.Client, cfg AdvisoryClientConfig) *AdvisoryClient {
	breaker := cfg.Breaker
	breaker.Name = "advisory"
	if breaker.ConsecutiveFailures == 0 {
		breaker.ConsecutiveFailures = 5
	}
	if breaker.OpenTimeout <= 0 {
		breaker.OpenTimeout = time.Minute
	}
	base := NewBaseClient(
		httpClient,
		breaker,
		DefaultRetryPolicy(),
		"fleetcare-scheduler/1.0",
	)
	return NewAdvisoryClientWithBase(base, cfg)
}

// NewAdvisoryClientWithBase creates an AdvisoryClient over a pre-configured
// BaseClient, e.g. one with retries disabled for tests.
func NewAdvisoryClientWithBase(base *BaseClient, cfg AdvisoryClientConfig) *AdvisoryClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AdvisoryClient{
		base:      base,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logger,
	}
}

// GenerateAdvisory returns the generated narrative for summary.
func (c *AdvisoryClient) GenerateAdvisory(ctx context.Context, summary string) (string, error) {
	body, err := json.Marshal(advisoryRequest{Model: c.model, Prompt: summary, MaxTokens: c.maxTokens})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode advisory request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/advisories", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create advisory request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxAdvisoryBytes))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamAdvisory, "failed to read advisory response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WarnContext(ctx, "advisory service rejected request",
			"status", resp.StatusCode,
			"body", truncate(string(raw), 200),
		)
		return "", types.NewAppError(types.ErrCodeUpstreamAdvisory,
			fmt.Sprintf("advisory service returned %d", resp.StatusCode), nil)
	}

	var out advisoryResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamAdvisory, "failed to decode advisory response", err)
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamAdvisory, "advisory service returned empty text", nil)
	}
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

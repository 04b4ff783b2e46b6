// Package llmclient is the concrete adapter.LLM (spec §6's LLM Client:
// generate(prompt, timeout_ms) -> {text, tokens_in?, tokens_out?}) for a
// fleet pointed at an HTTP-reachable completion endpoint.
//
// No third-party HTTP client library appears anywhere in the example
// pack's dependency surface, and the teacher itself never makes an
// outbound HTTP call (it is a server, not a client of one) — there is
// nothing in the corpus to ground a client library choice on, so this
// is built directly on net/http/context deadlines rather than adopting
// an unrelated ecosystem dependency for its own sake.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fleetcore.ai/internal/adapter"
)

// Client is an adapter.LLM that POSTs {prompt, timeout_ms} to URL and
// expects {text, tokens_in, tokens_out} back.
type Client struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

var _ adapter.LLM = (*Client)(nil)

// New returns a Client with a sane default *http.Client; callers can
// still set HTTPClient directly afterward to customize transport
// behavior.
func New(url, apiKey string) *Client {
	return &Client{URL: url, APIKey: apiKey, HTTPClient: &http.Client{}}
}

type generateRequest struct {
	Prompt    string `json:"prompt"`
	TimeoutMs int    `json:"timeout_ms"`
}

type generateResponse struct {
	Text      string `json:"text"`
	TokensIn  int    `json:"tokens_in,omitempty"`
	TokensOut int    `json:"tokens_out,omitempty"`
}

// Generate implements adapter.LLM. The context deadline, if any, governs
// the request; timeoutMs is also sent to the server so a proxy fronting
// multiple providers can apply its own budget.
func (c *Client) Generate(ctx context.Context, prompt string, timeoutMs int) (adapter.LLMResponse, error) {
	if timeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}

	body, err := json.Marshal(generateRequest{Prompt: prompt, TimeoutMs: timeoutMs})
	if err != nil {
		return adapter.LLMResponse{}, fmt.Errorf("llmclient: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return adapter.LLMResponse{}, fmt.Errorf("llmclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return adapter.LLMResponse{}, fmt.Errorf("llmclient: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return adapter.LLMResponse{}, fmt.Errorf("llmclient: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return adapter.LLMResponse{}, fmt.Errorf("llmclient: status %d: %s", resp.StatusCode, raw)
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return adapter.LLMResponse{}, fmt.Errorf("llmclient: decode response: %w", err)
	}
	return adapter.LLMResponse{Text: out.Text, TokensIn: out.TokensIn, TokensOut: out.TokensOut}, nil
}

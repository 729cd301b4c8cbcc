// Package openai implements pkg/llm's Streamer against any
// OpenAI-compatible Chat Completions endpoint, including Azure OpenAI
// deployments.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docuchatco/docuchat/pkg/llm"
)

const streamDoneSentinel = "[DONE]"

// Config holds the connection settings for an OpenAI-compatible endpoint.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1" or an
	// Azure deployment URL.
	BaseURL string

	// APIKey authenticates the request. Sent as a Bearer token, or as the
	// "api-key" header when APIVersion is set (Azure convention).
	APIKey string

	// APIVersion, when non-empty, is appended as the api-version query
	// parameter and switches authentication to the Azure header scheme.
	APIVersion string

	// Timeout bounds the full stream lifetime. Defaults to 5 minutes;
	// model responses can be slow.
	Timeout time.Duration
}

// Client issues streaming chat completion requests.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a streaming chat client for the configured endpoint.
func NewClient(c Config) (*Client, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("chat endpoint base URL is required")
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}

	return &Client{
		config:     c,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// StreamChat sends a chat completion request and returns the response
// stream. Tool calls are constrained to one per round: every request is sent
// with parallel tool calls disabled, and with temperature zero unless the
// caller set one.
func (c *Client) StreamChat(ctx context.Context, req *llm.ChatRequest) (llm.Stream, error) {
	wire := wireRequest{
		Model:       req.Model,
		Messages:    make([]wireMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	}

	if wire.Temperature == nil {
		zero := 0.0
		wire.Temperature = &zero
	}

	for _, msg := range req.Messages {
		wire.Messages = append(wire.Messages, wireMessage{Role: msg.Role, Content: msg.Content})
	}

	if len(req.Tools) > 0 {
		parallel := false
		wire.ParallelToolCalls = &parallel
		for _, tool := range req.Tools {
			var params any
			if len(tool.Parameters) > 0 {
				params = json.RawMessage(tool.Parameters)
			}
			wire.Tools = append(wire.Tools, wireTool{
				Type: "function",
				Function: wireFunction{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  params,
				},
			})
		}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshaling chat request: %w", err)
	}

	url := c.config.BaseURL + "/chat/completions"
	if c.config.APIVersion != "" {
		url += "?api-version=" + c.config.APIVersion
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.config.APIKey != "" {
		if c.config.APIVersion != "" {
			httpReq.Header.Set("api-key", c.config.APIKey)
		} else {
			httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending chat request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)

		var apiErr wireError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("chat endpoint returned status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("chat endpoint returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return newChatStream(resp.Body), nil
}

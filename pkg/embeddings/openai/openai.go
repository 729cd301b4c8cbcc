// Package openai implements pkg/embeddings' Embedder against an
// OpenAI-compatible embeddings endpoint, including Azure OpenAI deployments.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/docuchatco/docuchat/pkg/embeddings"
)

// DefaultMaxInputRunes caps embedding input length. Embedding models have a
// bounded input window; oversized text keeps a deterministic prefix so the
// same message always embeds to the same vector.
const DefaultMaxInputRunes = 8192

// Config holds configuration for the OpenAI-compatible embedder.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string

	// APIKey authenticates the request. Sent as a Bearer token, or as the
	// "api-key" header when APIVersion is set (Azure convention).
	APIKey string

	// APIVersion, when non-empty, is appended as the api-version query
	// parameter and switches authentication to the Azure header scheme.
	APIVersion string

	// Model is the embedding model name. Required; an embedder without a
	// model reports embeddings.ErrUnavailable on every call.
	Model string

	// MaxInputRunes bounds input length. Defaults to DefaultMaxInputRunes.
	MaxInputRunes int
}

// Embedder wraps an OpenAI-compatible embeddings API.
type Embedder struct {
	config     Config
	httpClient *http.Client
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewEmbedder creates an embedder for the configured endpoint.
func NewEmbedder(c Config) (*Embedder, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("embedding endpoint base URL is required")
	}

	if c.MaxInputRunes == 0 {
		c.MaxInputRunes = DefaultMaxInputRunes
	}

	return &Embedder{
		config: c,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

// Embed converts text into a vector embedding. Oversized input is truncated
// to a deterministic prefix before the request is sent.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.config.Model == "" {
		return nil, embeddings.ErrUnavailable
	}

	reqBody := embedRequest{
		Model: e.config.Model,
		Input: TruncateRunes(text, e.config.MaxInputRunes),
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", embeddings.ErrEmbedding, err)
	}

	url := e.config.BaseURL + "/embeddings"
	if e.config.APIVersion != "" {
		url += "?api-version=" + e.config.APIVersion
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", embeddings.ErrEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.APIKey != "" {
		if e.config.APIVersion != "" {
			req.Header.Set("api-key", e.config.APIKey)
		} else {
			req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
		}
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sending request: %v", embeddings.ErrEmbedding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: endpoint returned status %d: %s", embeddings.ErrEmbedding, resp.StatusCode, string(body))
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", embeddings.ErrEmbedding, err)
	}

	if len(embedResp.Data) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", embeddings.ErrEmbedding)
	}

	return embedResp.Data[0].Embedding, nil
}

// Close releases resources held by the embedder.
func (e *Embedder) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

// TruncateRunes returns the first max runes of s, never splitting a
// multi-byte rune.
func TruncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}

	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}

var _ embeddings.Embedder = (*Embedder)(nil)

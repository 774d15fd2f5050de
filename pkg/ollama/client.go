// Package ollama calls the Ollama embeddings HTTP API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/obdpulse/obdpulse/pkg/fn"
)

// ErrEmptyEmbedding is returned when the server answers without a vector.
var ErrEmptyEmbedding = errors.New("ollama: empty embedding")

// Client embeds text with one Ollama model.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
	workers int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithWorkers bounds concurrent requests made by EmbedBatch (default 4).
func WithWorkers(n int) Option { return func(c *Client) { c.workers = n } }

// New creates a Client for baseURL such as http://localhost:11434.
func New(baseURL, model string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: 30 * time.Second},
		workers: 4,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the embedding of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: embed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: embed: status %d", resp.StatusCode)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama: embed decode: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	vec := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// EmbedBatch embeds texts concurrently and returns vectors in input order.
// The first failure, in input order, is returned.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := fn.ParMapResult(texts, c.workers, func(text string) fn.Result[[]float32] {
		return fn.FromPair(c.Embed(ctx, text))
	})
	return fn.Collect(results).Unwrap()
}

// Package httpclient is an embed.Provider adapter for Ollama-compatible
// embeddings APIs, adapted directly from the teacher's
// internal/indexer-prototype/ollama_provider.go (resty client, env-var
// base URL with a localhost fallback, pull-and-retry-once on failure).
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rvbbit/rvbbit/internal/model"
)

// Client embeds text via an Ollama-compatible /api/embeddings endpoint.
type Client struct {
	http  *resty.Client
	model string
}

// New constructs a Client. If baseURL is empty, OLLAMA_URL is consulted,
// falling back to http://localhost:11434.
func New(baseURL, modelName string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(5 * time.Minute)
	return &Client{http: c, model: modelName}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed generates one vector per text, sequentially. Callers needing
// parallelism (e.g. RVBBIT EMBED over many rows) fan this out themselves
// via a bounded worker pool, matching the MAP PARALLEL idiom.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.embedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (c *Client) embedOne(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, model.NewValidationError("text", "empty text")
	}

	body := embedRequest{Model: c.model, Prompt: text}
	resp, err := c.http.R().SetContext(ctx).SetBody(&body).Post("/api/embeddings")
	if err != nil {
		return nil, model.NewProviderError("ollama", err.Error())
	}
	if resp.StatusCode() != http.StatusOK {
		_ = c.pullModel(ctx)
		resp2, err2 := c.http.R().SetContext(ctx).SetBody(&body).Post("/api/embeddings")
		if err2 != nil || resp2.StatusCode() != http.StatusOK {
			return nil, model.NewProviderError("ollama", fmt.Sprintf("status %d (after pull attempt)", resp.StatusCode()))
		}
		resp = resp2
	}

	var er embedResponse
	if err := json.Unmarshal(resp.Body(), &er); err != nil {
		return nil, model.NewParseError("embed_response", err.Error())
	}

	vec := make([]float32, len(er.Embedding))
	for i, v := range er.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (c *Client) pullModel(ctx context.Context) error {
	body := map[string]string{"name": c.model}
	_, _ = c.http.R().SetContext(ctx).SetBody(body).Post("/api/pull")
	return nil
}

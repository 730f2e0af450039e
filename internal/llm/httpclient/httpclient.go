// Package httpclient is an llm.Client adapter for OpenAI-compatible chat
// completion APIs (including local Ollama-compatible servers), built on
// resty with a retry-once pattern mirroring the teacher's
// indexer-prototype/ollama_provider.go.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/rvbbit/rvbbit/internal/llm"
	"github.com/rvbbit/rvbbit/internal/model"
)

// Client calls an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	http     *resty.Client
	apiKey   string
	provider string

	mu    sync.Mutex
	usage map[string]usageRecord
}

type usageRecord struct {
	tokensIn  int
	tokensOut int
	cost      float64
}

// New constructs a Client against baseURL (e.g. "https://api.openai.com/v1"
// or a local Ollama-compatible "http://localhost:11434/v1").
func New(baseURL, apiKey, provider string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(5 * time.Minute)
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &Client{http: c, apiKey: apiKey, provider: provider, usage: make(map[string]usageRecord)}
}

type chatMessage struct {
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatChoice struct {
	Message struct {
		Content   string `json:"content"`
		ToolCalls []struct {
			Function struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			} `json:"function"`
		} `json:"tool_calls"`
	} `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// Complete sends req to the provider, retrying once on a non-2xx response
// (mirroring the teacher's pull-and-retry-once idiom, generalized from
// "pull missing model" to "retry transient failure once").
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	body := chatRequest{Model: req.Model, Messages: toChatMessages(req.Messages)}

	resp, err := c.http.R().SetContext(ctx).SetBody(&body).Post("/chat/completions")
	if err != nil {
		return llm.Response{}, model.NewProviderError(c.provider, err.Error())
	}
	if resp.StatusCode() != http.StatusOK {
		resp2, err2 := c.http.R().SetContext(ctx).SetBody(&body).Post("/chat/completions")
		if err2 != nil || resp2.StatusCode() != http.StatusOK {
			return llm.Response{}, model.NewProviderError(c.provider, fmt.Sprintf("status %d: %s", resp.StatusCode(), resp.String()))
		}
		resp = resp2
	}

	var cr chatResponse
	if err := json.Unmarshal(resp.Body(), &cr); err != nil {
		return llm.Response{}, model.NewParseError("llm_response", err.Error())
	}
	if len(cr.Choices) == 0 {
		return llm.Response{}, model.NewProviderError(c.provider, "empty choices in response")
	}

	requestID := cr.ID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	var toolCalls []llm.ToolCall
	for _, tc := range cr.Choices[0].Message.ToolCalls {
		toolCalls = append(toolCalls, llm.ToolCall{Name: tc.Function.Name, Args: []byte(tc.Function.Arguments)})
	}

	c.mu.Lock()
	c.usage[requestID] = usageRecord{tokensIn: cr.Usage.PromptTokens, tokensOut: cr.Usage.CompletionTokens}
	c.mu.Unlock()

	return llm.Response{
		Content:   cr.Choices[0].Message.Content,
		ToolCalls: toolCalls,
		TokensIn:  cr.Usage.PromptTokens,
		TokensOut: cr.Usage.CompletionTokens,
		RequestID: requestID,
	}, nil
}

// FetchUsage returns the usage recorded for requestID by Complete. Most
// OpenAI-compatible providers return usage inline with the completion, so
// this is typically a cache lookup rather than a second network call.
func (c *Client) FetchUsage(_ context.Context, requestID string) (int, int, float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.usage[requestID]
	if !ok {
		return 0, 0, 0, model.NewProviderError(c.provider, "no usage recorded for request "+requestID)
	}
	return rec.tokensIn, rec.tokensOut, rec.cost, nil
}

func toChatMessages(msgs []model.Message) []chatMessage {
	out := make([]chatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, chatMessage{Role: m.Role, Content: m.Content, ToolCalls: json.RawMessage(m.ToolCalls)})
	}
	return out
}

// Package fakeclient is a dependency-free llm.Client for tests and local
// dev (config.EmbedProvider/LLMProvider == "fake", per
// config.NewForTesting): it never calls out to a real model, returning a
// deterministic echo of the last user message so cascades can be
// exercised end-to-end without a running provider.
package fakeclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/rvbbit/rvbbit/internal/llm"
)

// Client is a canned llm.Client. Responses defaults to echoing the final
// message's content; set Responses to script specific replies in order.
type Client struct {
	mu        sync.Mutex
	Responses []string
	calls     int
}

func New() *Client {
	return &Client{}
}

func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	requestID := fmt.Sprintf("fake-%d", c.calls)
	c.calls++

	if len(c.Responses) > 0 {
		idx := c.calls - 1
		if idx >= len(c.Responses) {
			idx = len(c.Responses) - 1
		}
		return llm.Response{Content: c.Responses[idx], RequestID: requestID}, nil
	}

	content := ""
	if len(req.Messages) > 0 {
		content = req.Messages[len(req.Messages)-1].Content
	}
	return llm.Response{Content: content, RequestID: requestID}, nil
}

func (c *Client) FetchUsage(ctx context.Context, requestID string) (int, int, float64, error) {
	return 0, 0, 0, nil
}

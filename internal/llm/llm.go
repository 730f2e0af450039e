// Package llm defines the LLMClient external interface (spec §1: "Model
// providers... an LLMClient with Complete(request) → response{content,
// tokens_in, tokens_out, cost, request_id}"). Concrete adapters live in
// subpackages (httpclient for an OpenAI-compatible HTTP API).
package llm

import (
	"context"

	"github.com/rvbbit/rvbbit/internal/model"
)

// ToolSpec describes one callable tool offered to the model, rendered
// from tackle.Registry synopses plus a JSON schema for its arguments.
type ToolSpec struct {
	Name        string
	Description string
	ArgsSchema  model.RawValue
}

// Request is one turn of a model invocation.
type Request struct {
	Model    string
	Messages []model.Message
	Tools    []ToolSpec
	MaxTurns int
}

// ToolCall is a model-issued tool invocation.
type ToolCall struct {
	Name string
	Args []byte
}

// Response is what a provider returns for one Complete call.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	TokensIn  int
	TokensOut int
	Cost      float64
	RequestID string
}

// Client is the external collaborator RVBBIT calls into for model
// inference. Every cell that runs in agent mode goes through exactly one
// Complete call per turn.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	// FetchUsage retrieves a provider's usage+cost record for a prior
	// request, used by logsink to enrich agent_call rows (§4.2).
	FetchUsage(ctx context.Context, requestID string) (tokensIn, tokensOut int, cost float64, err error)
}

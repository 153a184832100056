package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// ChatRequest is the uniform request shape passed to complete/complete_stream.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
}

// Provider is one wire-format backend (OpenAI-compatible or Anthropic).
type Provider interface {
	Complete(ctx context.Context, req ChatRequest) (Response, error)
	CompleteStream(ctx context.Context, req ChatRequest, sink StreamSink) (Response, error)
}

// ProviderConfig carries per-backend connection settings.
type ProviderConfig struct {
	APIKey  string
	APIBase string
}

// Transport is the single facade internal/agent talks to: complete and
// complete_stream, with wire-format dispatch and circuit-breaker gating
// hidden behind it.
type Transport struct {
	openai     Provider
	anthropic  Provider
	breaker    *CircuitBreaker
	openaiBase string
}

// NewTransport builds a Transport from per-backend configs. Either
// config may be zero-valued if that backend is unused; dispatch only
// fails if a request actually routes to a backend with no APIKey.
func NewTransport(openaiCfg, anthropicCfg ProviderConfig) *Transport {
	return &Transport{
		openai:     newOpenAIProvider(openaiCfg),
		anthropic:  newAnthropicProvider(anthropicCfg),
		breaker:    DefaultCircuitBreaker(),
		openaiBase: openaiCfg.APIBase,
	}
}

// selectProvider implements spec.md §4.C's wire-format selection rule:
// names beginning with "claude", or a configured OpenAI-compatible base
// containing "anthropic", route to the Anthropic format; everything else
// to OpenAI-compatible.
func (t *Transport) selectProvider(req ChatRequest) Provider {
	model := strings.ToLower(req.Model)
	if strings.HasPrefix(model, "claude") || strings.Contains(strings.ToLower(t.openaiBase), "anthropic") {
		return t.anthropic
	}
	return t.openai
}

// Complete performs a single non-streaming chat completion.
func (t *Transport) Complete(ctx context.Context, req ChatRequest) (Response, error) {
	provider := t.selectProvider(req)
	var resp Response
	err := t.breaker.Call(func() error {
		var callErr error
		resp, callErr = provider.Complete(ctx, req)
		return callErr
	})
	return resp, err
}

// CompleteStream performs a streaming chat completion; sink receives
// incremental text chunks only, tool-call deltas accumulate silently and
// surface in the returned Response.
func (t *Transport) CompleteStream(ctx context.Context, req ChatRequest, sink StreamSink) (Response, error) {
	provider := t.selectProvider(req)
	var resp Response
	err := t.breaker.Call(func() error {
		var callErr error
		resp, callErr = provider.CompleteStream(ctx, req, sink)
		return callErr
	})
	return resp, err
}

// tokenEncoding is shared across calls; tiktoken-go's cl100k_base is a
// close-enough approximation for both wire formats since SkillLite only
// needs budget estimates, not exact provider token counts.
var tokenEncoding, tokenEncodingErr = tiktoken.GetEncoding("cl100k_base")

// EstimateTokens returns an approximate token count for text. The
// thresholds in internal/agent's context-overflow recovery and
// long-result handling count characters and do not call it.
func EstimateTokens(text string) int {
	if tokenEncodingErr != nil || tokenEncoding == nil {
		return len(text) / 4
	}
	return len(tokenEncoding.Encode(text, nil, nil))
}

// EstimateMessageTokens sums EstimateTokens over a message's textual
// content plus a small per-message overhead for role/name framing.
func EstimateMessageTokens(m Message) int {
	total := 4
	if s, ok := m.Content.(string); ok {
		total += EstimateTokens(s)
	} else if m.Content != nil {
		total += EstimateTokens(fmt.Sprintf("%v", m.Content))
	}
	for _, tc := range m.ToolCalls {
		total += EstimateTokens(tc.Function.Name) + EstimateTokens(tc.Function.Arguments)
	}
	return total
}

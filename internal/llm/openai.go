package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const openAIBaseURL = "https://api.openai.com/v1"

// openAIProvider speaks the OpenAI chat-completions wire format, also
// used by any OpenAI-compatible base URL (the default dispatch target
// per spec.md §4.C).
type openAIProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newOpenAIProvider(cfg ProviderConfig) *openAIProvider {
	base := cfg.APIBase
	if base == "" {
		base = openAIBaseURL
	}
	return &openAIProvider{
		apiKey:     cfg.APIKey,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type openAIWireMessage struct {
	Role       string     `json:"role"`
	Content    any        `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

type openAIWireRequest struct {
	Model       string               `json:"model"`
	Messages    []openAIWireMessage  `json:"messages"`
	Temperature float64              `json:"temperature,omitempty"`
	Stream      bool                 `json:"stream"`
	Tools       []openAIWireToolSpec `json:"tools,omitempty"`
}

type openAIWireToolSpec struct {
	Type     string         `json:"type"`
	Function ToolDefinition `json:"function"`
}

type openAIWireResponse struct {
	Choices []struct {
		Message      openAIWireMessage `json:"message"`
		FinishReason string            `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

type openAIWireChunk struct {
	Choices []struct {
		Delta struct {
			Content   string          `json:"content,omitempty"`
			ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage,omitempty"`
}

func toWireMessages(msgs []Message) []openAIWireMessage {
	out := make([]openAIWireMessage, len(msgs))
	for i, m := range msgs {
		out[i] = openAIWireMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
	}
	return out
}

func toWireTools(tools []ToolDefinition) []openAIWireToolSpec {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openAIWireToolSpec, len(tools))
	for i, t := range tools {
		out[i] = openAIWireToolSpec{Type: "function", Function: t}
	}
	return out
}

func normalizeOpenAIFinish(reason string) FinishReason {
	switch reason {
	case "tool_calls":
		return FinishToolCalls
	case "length":
		return FinishLength
	case "":
		return ""
	default:
		return FinishStop
	}
}

func (p *openAIProvider) buildRequest(ctx context.Context, req ChatRequest, stream bool) (*http.Request, error) {
	wire := openAIWireRequest{
		Model:       req.Model,
		Messages:    toWireMessages(req.Messages),
		Temperature: req.Temperature,
		Stream:      stream,
		Tools:       toWireTools(req.Tools),
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshaling openai request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating openai request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return httpReq, nil
}

// Complete performs a non-streaming chat completion.
func (p *openAIProvider) Complete(ctx context.Context, req ChatRequest) (Response, error) {
	httpReq, err := p.buildRequest(ctx, req, false)
	if err != nil {
		return Response{}, err
	}
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody bytes.Buffer
		errBody.ReadFrom(resp.Body)
		return Response{}, fmt.Errorf("openai request failed: %s: %s", resp.Status, errBody.String())
	}

	var wireResp openAIWireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		return Response{}, fmt.Errorf("decoding openai response: %w", err)
	}
	if len(wireResp.Choices) == 0 {
		return Response{}, fmt.Errorf("openai response had no choices")
	}
	choice := wireResp.Choices[0]
	return Response{
		Content:      contentToString(choice.Message.Content),
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: normalizeOpenAIFinish(choice.FinishReason),
		Usage:        wireResp.Usage,
	}, nil
}

// CompleteStream consumes server-sent events, merging tool-call deltas
// by index: id and name fields arrive on the first delta of each index,
// arguments accumulate as a string across subsequent deltas.
func (p *openAIProvider) CompleteStream(ctx context.Context, req ChatRequest, sink StreamSink) (Response, error) {
	httpReq, err := p.buildRequest(ctx, req, true)
	if err != nil {
		return Response{}, err
	}
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody bytes.Buffer
		errBody.ReadFrom(resp.Body)
		return Response{}, fmt.Errorf("openai streaming request failed: %s: %s", resp.Status, errBody.String())
	}

	acc := NewStreamAccumulator()
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if len(line) > 6 && line[:6] == "data: " {
			line = line[6:]
		}
		if line == "[DONE]" {
			break
		}

		var chunk openAIWireChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return Response{}, fmt.Errorf("decoding openai chunk: %w", err)
		}
		if chunk.Usage != nil {
			acc.SetUsage(*chunk.Usage)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			acc.AddContent(choice.Delta.Content)
			if sink != nil {
				sink(choice.Delta.Content)
			}
		}
		for _, d := range choice.Delta.ToolCalls {
			acc.AddToolCallDelta(d)
		}
		if choice.FinishReason != nil {
			acc.SetFinishReason(normalizeOpenAIFinish(*choice.FinishReason))
		}
	}
	if err := scanner.Err(); err != nil {
		return Response{}, fmt.Errorf("reading openai stream: %w", err)
	}

	return acc.Result(), nil
}

func contentToString(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

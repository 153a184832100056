package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const anthropicBaseURL = "https://api.anthropic.com"
const anthropicVersion = "2023-06-01"
const anthropicDefaultMaxTokens = 4096

// anthropicProvider speaks the Claude Messages API. Unlike the teacher's
// version (which rejected tool calls and faked streaming by wrapping a
// single non-streaming call), this implementation lifts system prompts,
// collapses tool results, and consumes the real SSE event stream —
// spec.md §4.C requires all three.
type anthropicProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newAnthropicProvider(cfg ProviderConfig) *anthropicProvider {
	base := cfg.APIBase
	if base == "" {
		base = anthropicBaseURL
	}
	return &anthropicProvider{
		apiKey:     cfg.APIKey,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type anthropicWireRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	Stream      bool               `json:"stream"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// toAnthropicMessages implements spec.md §4.C's Anthropic path: system
// messages lift to the top-level System field (concatenated if there
// are several); tool-result messages collapse into a single user
// message carrying one tool_result block per consecutive run.
func toAnthropicMessages(msgs []Message) (system string, out []anthropicMessage) {
	var systemParts []string
	var pendingToolResults []anthropicContent

	flushToolResults := func() {
		if len(pendingToolResults) > 0 {
			out = append(out, anthropicMessage{Role: "user", Content: pendingToolResults})
			pendingToolResults = nil
		}
	}

	for _, m := range msgs {
		switch m.Role {
		case "system":
			systemParts = append(systemParts, contentToString(m.Content))
		case "tool":
			pendingToolResults = append(pendingToolResults, anthropicContent{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   contentToString(m.Content),
			})
		case "assistant":
			flushToolResults()
			blocks := []anthropicContent{}
			if text := contentToString(m.Content); text != "" {
				blocks = append(blocks, anthropicContent{Type: "text", Text: text})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropicContent{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Function.Name,
					Input: json.RawMessage(tc.Function.Arguments),
				})
			}
			out = append(out, anthropicMessage{Role: "assistant", Content: blocks})
		default: // user
			flushToolResults()
			out = append(out, anthropicMessage{
				Role:    "user",
				Content: []anthropicContent{{Type: "text", Text: contentToString(m.Content)}},
			})
		}
	}
	flushToolResults()
	return strings.Join(systemParts, "\n\n"), out
}

func toAnthropicTools(tools []ToolDefinition) []anthropicTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropicTool, len(tools))
	for i, t := range tools {
		out[i] = anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters}
	}
	return out
}

// normalizeAnthropicFinish implements spec.md's stop_reason normalization:
// end_turn -> stop, tool_use -> tool_calls.
func normalizeAnthropicFinish(stopReason string) FinishReason {
	switch stopReason {
	case "tool_use":
		return FinishToolCalls
	case "max_tokens":
		return FinishLength
	case "":
		return ""
	default:
		return FinishStop
	}
}

func (p *anthropicProvider) buildRequest(ctx context.Context, req ChatRequest, stream bool) (*http.Request, error) {
	system, messages := toAnthropicMessages(req.Messages)
	wire := anthropicWireRequest{
		Model:       req.Model,
		System:      system,
		Messages:    messages,
		MaxTokens:   anthropicDefaultMaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
		Tools:       toAnthropicTools(req.Tools),
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshaling anthropic request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating anthropic request: %w", err)
	}
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("content-type", "application/json")
	return httpReq, nil
}

type anthropicWireResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete performs a non-streaming Messages API call, collecting
// tool_use blocks into uniform ToolCalls with their parsed input
// serialized back to a JSON string for downstream handling.
func (p *anthropicProvider) Complete(ctx context.Context, req ChatRequest) (Response, error) {
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
		return Response{}, fmt.Errorf("anthropic request failed: %s: %s", resp.Status, errBody.String())
	}

	var wireResp anthropicWireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		return Response{}, fmt.Errorf("decoding anthropic response: %w", err)
	}
	return anthropicResultToResponse(wireResp.Content, wireResp.StopReason, Usage{
		PromptTokens:     wireResp.Usage.InputTokens,
		CompletionTokens: wireResp.Usage.OutputTokens,
		TotalTokens:      wireResp.Usage.InputTokens + wireResp.Usage.OutputTokens,
	}), nil
}

func anthropicResultToResponse(blocks []anthropicContent, stopReason string, usage Usage) Response {
	var textParts []string
	var calls []ToolCall
	for _, b := range blocks {
		switch b.Type {
		case "text":
			textParts = append(textParts, b.Text)
		case "tool_use":
			calls = append(calls, ToolCall{
				ID:   b.ID,
				Type: "function",
				Function: FunctionCall{
					Name:      b.Name,
					Arguments: string(b.Input),
				},
			})
		}
	}
	return Response{
		Content:      strings.Join(textParts, "\n"),
		ToolCalls:    calls,
		FinishReason: normalizeAnthropicFinish(stopReason),
		Usage:        usage,
	}
}

// anthropicSSEEvent mirrors the named-event envelope Anthropic streams:
// content_block_start/delta/stop and message_delta each carry a
// different payload shape under the same "type" discriminator.
type anthropicSSEEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	ContentBlock struct {
		Type string          `json:"type"`
		ID   string          `json:"id"`
		Name string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content_block"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// CompleteStream consumes Anthropic's named SSE events. Each
// content_block_start at a tool_use index seeds a ToolCallDelta with
// ID/Name; content_block_delta's partial_json accumulates as Arguments,
// exactly the index-keyed merge spec.md asks for — unified through the
// same StreamAccumulator the OpenAI path uses.
func (p *anthropicProvider) CompleteStream(ctx context.Context, req ChatRequest, sink StreamSink) (Response, error) {
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
		return Response{}, fmt.Errorf("anthropic streaming request failed: %s: %s", resp.Status, errBody.String())
	}

	acc := NewStreamAccumulator()
	blockTypes := map[int]string{}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			eventType = ""
			continue
		}
		if strings.HasPrefix(line, "event: ") {
			eventType = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var ev anthropicSSEEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return Response{}, fmt.Errorf("decoding anthropic event: %w", err)
		}
		if ev.Type == "" {
			ev.Type = eventType
		}

		switch ev.Type {
		case "content_block_start":
			blockTypes[ev.Index] = ev.ContentBlock.Type
			if ev.ContentBlock.Type == "tool_use" {
				acc.AddToolCallDelta(ToolCallDelta{
					Index:    ev.Index,
					ID:       ev.ContentBlock.ID,
					Type:     "function",
					Function: &FunctionCallDelta{Name: ev.ContentBlock.Name},
				})
			}
		case "content_block_delta":
			switch blockTypes[ev.Index] {
			case "tool_use":
				if ev.Delta.PartialJSON != "" {
					acc.AddToolCallDelta(ToolCallDelta{
						Index:    ev.Index,
						Function: &FunctionCallDelta{Arguments: ev.Delta.PartialJSON},
					})
				}
			default:
				if ev.Delta.Text != "" {
					acc.AddContent(ev.Delta.Text)
					if sink != nil {
						sink(ev.Delta.Text)
					}
				}
			}
		case "message_delta":
			if ev.Delta.StopReason != "" {
				acc.SetFinishReason(normalizeAnthropicFinish(ev.Delta.StopReason))
			}
			if ev.Usage.OutputTokens > 0 {
				acc.SetUsage(Usage{
					CompletionTokens: ev.Usage.OutputTokens,
					TotalTokens:      ev.Usage.InputTokens + ev.Usage.OutputTokens,
				})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Response{}, fmt.Errorf("reading anthropic stream: %w", err)
	}

	return acc.Result(), nil
}

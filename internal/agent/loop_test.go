package agent

import (
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/skilllite/skilllite/internal/llm"
)

// scriptedCompleter returns one canned Response per call, in order.
type scriptedCompleter struct {
	responses []llm.Response
	calls     int
}

func (s *scriptedCompleter) Complete(ctx context.Context, req llm.ChatRequest) (llm.Response, error) {
	if s.calls >= len(s.responses) {
		return llm.Response{}, nil
	}
	r := s.responses[s.calls]
	s.calls++
	return r, nil
}

func (s *scriptedCompleter) CompleteStream(ctx context.Context, req llm.ChatRequest, sink llm.StreamSink) (llm.Response, error) {
	return s.Complete(ctx, req)
}

type echoTool struct{}

func (echoTool) Name() string                 { return "echo" }
func (echoTool) Description() string          { return "echoes input" }
func (echoTool) Schema() json.RawMessage      { return schemaObject(map[string]any{}) }
func (echoTool) Execute(ctx *ExecutionContext) (*ToolResult, error) {
	return &ToolResult{Success: true, Output: "echoed"}, nil
}

func newTestRegistry() *Registry {
	r := NewRegistry(nil)
	r.Register(echoTool{})
	return r
}

func TestLoopSimpleStopsOnTextOnlyResponse(t *testing.T) {
	completer := &scriptedCompleter{responses: []llm.Response{
		{Content: "all done", FinishReason: llm.FinishStop},
	}}
	cfg := Config{
		Transport: completer,
		Model:     "gpt-test",
		Registry:  newTestRegistry(),
		History:   NewHistory("system prompt"),
	}
	loop := NewLoop(cfg, nil)
	out, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "all done" {
		t.Fatalf("expected final text %q, got %q", "all done", out)
	}
	if completer.calls != 1 {
		t.Fatalf("expected exactly 1 LLM call, got %d", completer.calls)
	}
}

func TestLoopSimpleExecutesToolThenFinishes(t *testing.T) {
	completer := &scriptedCompleter{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "1", Function: llm.FunctionCall{Name: "echo", Arguments: "{}"}}}, FinishReason: llm.FinishToolCalls},
		{Content: "finished", FinishReason: llm.FinishStop},
	}}
	cfg := Config{
		Transport: completer,
		Model:     "gpt-test",
		Registry:  newTestRegistry(),
		History:   NewHistory("system prompt"),
	}
	loop := NewLoop(cfg, nil)
	out, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "finished" {
		t.Fatalf("expected final text %q, got %q", "finished", out)
	}

	var sawToolResult bool
	for _, m := range cfg.History.Messages() {
		if m.Role == "tool" && m.Content == "echoed" {
			sawToolResult = true
		}
	}
	if !sawToolResult {
		t.Fatal("expected tool result to be appended to history")
	}
}

func TestLoopTaskPlanningCompletesAllTasks(t *testing.T) {
	completer := &scriptedCompleter{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "1", Function: llm.FunctionCall{Name: "echo", Arguments: "{}"}}}, FinishReason: llm.FinishToolCalls},
		{Content: "Task 0 completed", FinishReason: llm.FinishStop},
	}}
	plan := &TaskList{Tasks: []Task{{ID: 0, Description: "do the thing", ToolHint: ToolHintShell}}}
	cfg := Config{
		Transport: completer,
		Model:     "gpt-test",
		Registry:  newTestRegistry(),
		History:   NewHistory("system prompt"),
	}
	loop := NewLoop(cfg, plan)
	_, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !plan.AllCompleted() {
		t.Fatal("expected task 0 to be marked completed")
	}
}

func TestLoopHallucinationGuardRetriesBeforeAcceptingTextOnly(t *testing.T) {
	completer := &scriptedCompleter{responses: []llm.Response{
		{Content: "I think it's done", FinishReason: llm.FinishStop},
		{Content: "I think it's done again", FinishReason: llm.FinishStop},
		{Content: "Task 0 completed", FinishReason: llm.FinishStop},
	}}
	plan := &TaskList{Tasks: []Task{{ID: 0, Description: "analyze", ToolHint: ToolHintAnalysis}}}
	cfg := Config{
		Transport:        completer,
		Model:            "gpt-test",
		Registry:         newTestRegistry(),
		History:          NewHistory("system prompt"),
		MaxNoToolRetries: 2,
	}
	loop := NewLoop(cfg, plan)
	_, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if completer.calls != 3 {
		t.Fatalf("expected 3 LLM calls (2 retries + final acceptance), got %d", completer.calls)
	}
}

func TestLoopRecordsStatsViaMockCompleter(t *testing.T) {
	ctrl := gomock.NewController(t)
	completer := NewMockCompleter(ctrl)
	gomock.InOrder(
		completer.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(llm.Response{
			ToolCalls:    []llm.ToolCall{{ID: "1", Function: llm.FunctionCall{Name: "echo", Arguments: "{}"}}},
			FinishReason: llm.FinishToolCalls,
		}, nil),
		completer.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(llm.Response{
			Content: "finished", FinishReason: llm.FinishStop,
		}, nil),
	)

	cfg := Config{
		Transport: completer,
		Model:     "gpt-test",
		Registry:  newTestRegistry(),
		History:   NewHistory("system prompt"),
	}
	loop := NewLoop(cfg, nil)
	out, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "finished" {
		t.Fatalf("expected final text %q, got %q", "finished", out)
	}

	stats := loop.Stats()
	if !stats.Completed {
		t.Fatal("expected stats to report completion")
	}
	if stats.ToolCalls != 1 {
		t.Fatalf("expected 1 recorded tool call, got %d", stats.ToolCalls)
	}
	if len(stats.ToolsDetail) != 1 || stats.ToolsDetail[0].Name != "echo" || !stats.ToolsDetail[0].Success {
		t.Fatalf("expected tools detail to record a successful echo call, got %+v", stats.ToolsDetail)
	}
}

func TestParseToolArgumentsRecoversTruncatedWriteFile(t *testing.T) {
	truncated := `{"path": "out.txt", "content": "hello wor`
	params, err := parseToolArguments("write_file", truncated)
	if err != nil {
		t.Fatalf("expected recovery to succeed, got error: %v", err)
	}
	if params["path"] != "out.txt" {
		t.Fatalf("expected recovered path, got %v", params["path"])
	}
	if params["content"] != "hello wor" {
		t.Fatalf("expected recovered content, got %v", params["content"])
	}
}

func TestParseToolArgumentsFailsForUnrecoverableTool(t *testing.T) {
	_, err := parseToolArguments("run_command", `{"command": "ls`)
	if err == nil {
		t.Fatal("expected an error for a non-write tool with malformed JSON")
	}
}

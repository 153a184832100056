package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skilllite/skilllite/internal/llm"
)

// WriteOutputTool writes into the output directory, kept distinct from
// the workspace per spec.md §4.D.3 so skill artifacts never collide with
// the skill's own working tree.
type WriteOutputTool struct{}

func (WriteOutputTool) Name() string { return "write_output" }
func (WriteOutputTool) Description() string {
	return "Write a file into the session output directory, separate from the workspace."
}
func (WriteOutputTool) Schema() json.RawMessage {
	return schemaObject(map[string]any{
		"path":    map[string]any{"type": "string", "description": "Path relative to the output directory"},
		"content": map[string]any{"type": "string", "description": "Content to write"},
	}, "path", "content")
}
func (WriteOutputTool) Execute(ctx *ExecutionContext) (*ToolResult, error) {
	path, ok := stringParam(ctx, "path")
	if !ok {
		return &ToolResult{Success: false, Error: "path parameter must be a string"}, nil
	}
	content, ok := stringParam(ctx, "content")
	if !ok {
		return &ToolResult{Success: false, Error: "content parameter must be a string"}, nil
	}

	resolved, err := resolveConfined(ctx.OutputDir, path)
	if err != nil {
		return &ToolResult{Success: false, Error: err.Error()}, nil
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("failed to create directory: %v", err)}, nil
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("failed to write output: %v", err)}, nil
	}
	return &ToolResult{
		Success: true,
		Output:  fmt.Sprintf("Wrote output %s (%d bytes)", filepath.Base(resolved), len(content)),
		Data:    map[string]any{"path": resolved, "size": len(content)},
	}, nil
}

// ListOutputTool lists the contents of the output directory — read-only
// introspection, per spec.md §4.D.3.
type ListOutputTool struct{}

func (ListOutputTool) Name() string        { return "list_output" }
func (ListOutputTool) Description() string { return "List files currently in the output directory." }
func (ListOutputTool) Schema() json.RawMessage {
	return schemaObject(map[string]any{})
}
func (ListOutputTool) Execute(ctx *ExecutionContext) (*ToolResult, error) {
	entries, err := os.ReadDir(ctx.OutputDir)
	if err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("failed to read output directory: %v", err)}, nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return &ToolResult{Success: true, Data: map[string]any{"files": names, "count": len(names)}}, nil
}

// ChatHistoryTool exposes read-only introspection of the session's
// message history, as a content-preserving tool exempt from
// summarization (spec.md §4.D.4).
type ChatHistoryTool struct {
	History *History
}

func (t ChatHistoryTool) Name() string { return "chat_history" }
func (t ChatHistoryTool) Description() string {
	return "Return the session's chat message history so far."
}
func (t ChatHistoryTool) Schema() json.RawMessage { return schemaObject(map[string]any{}) }
func (t ChatHistoryTool) Execute(ctx *ExecutionContext) (*ToolResult, error) {
	if t.History == nil {
		return &ToolResult{Success: true, Output: "(no history)"}, nil
	}
	b, _ := json.MarshalIndent(t.History.Messages(), "", "  ")
	return &ToolResult{Success: true, Output: string(b)}, nil
}

// ChatPlanTool exposes the current task plan state.
type ChatPlanTool struct {
	Plan *TaskList
}

func (t ChatPlanTool) Name() string        { return "chat_plan" }
func (t ChatPlanTool) Description() string { return "Return the current task plan and its completion state." }
func (t ChatPlanTool) Schema() json.RawMessage { return schemaObject(map[string]any{}) }
func (t ChatPlanTool) Execute(ctx *ExecutionContext) (*ToolResult, error) {
	if t.Plan == nil {
		return &ToolResult{Success: true, Output: "(no active plan)"}, nil
	}
	b, _ := json.MarshalIndent(t.Plan, "", "  ")
	return &ToolResult{Success: true, Output: string(b)}, nil
}

// UpdateTaskPlanTool lets the LLM revise the plan mid-execution — it
// replaces the TaskList, notifies the sink, and deliberately does NOT
// reset the iteration budget (spec.md §4.D.2).
type UpdateTaskPlanTool struct {
	Plan *TaskList
	Sink func(llm.Message)
}

func (t *UpdateTaskPlanTool) Name() string { return "update_task_plan" }
func (t *UpdateTaskPlanTool) Description() string {
	return "Replace the current task plan with a revised list of tasks, e.g. when a tool result proves the plan was wrong."
}
func (t *UpdateTaskPlanTool) Schema() json.RawMessage {
	return schemaObject(map[string]any{
		"tasks": map[string]any{
			"type":        "array",
			"description": "Revised ordered list of tasks",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":          map[string]any{"type": "integer"},
					"description": map[string]any{"type": "string"},
					"tool_hint":   map[string]any{"type": "string"},
				},
			},
		},
	}, "tasks")
}
func (t *UpdateTaskPlanTool) Execute(ctx *ExecutionContext) (*ToolResult, error) {
	raw, ok := ctx.Params["tasks"]
	if !ok {
		return &ToolResult{Success: false, Error: "tasks parameter is required"}, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("invalid tasks payload: %v", err)}, nil
	}
	var tasks []Task
	if err := json.Unmarshal(encoded, &tasks); err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("invalid tasks payload: %v", err)}, nil
	}

	if t.Plan != nil {
		t.Plan.Tasks = tasks
	}
	if t.Sink != nil {
		b, _ := json.Marshal(t.Plan)
		t.Sink(llm.Message{Role: "system", Content: "plan updated: " + string(b)})
	}
	return &ToolResult{Success: true, Output: fmt.Sprintf("plan updated with %d tasks", len(tasks))}, nil
}

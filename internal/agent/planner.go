package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skilllite/skilllite/internal/llm"
)

// plannerSystemPrompt instructs the model to decompose a request into an
// ordered task list, generalizing pkg/orchestrator/planning.go's
// plan-generation prompt into SkillLite's Task/TaskList shape.
const plannerSystemPrompt = `Break the user's request into an ordered list of concrete tasks.
Each task has an id (starting at 0, strictly increasing), a one-sentence description,
and a tool_hint: "analysis" for reasoning-only steps that need no tool call,
"file_operation" for steps that read or write files, "shell" for steps that run a
command, or "" for anything else that still needs a tool. Respond only by calling
the propose_plan tool.`

const proposePlanToolName = "propose_plan"

func proposePlanSchema() json.RawMessage {
	return schemaObject(map[string]any{
		"tasks": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":          map[string]any{"type": "integer"},
					"description": map[string]any{"type": "string"},
					"tool_hint":   map[string]any{"type": "string"},
				},
				"required": []string{"id", "description"},
			},
		},
	}, "tasks")
}

// GeneratePlan asks the LLM to decompose request into a TaskList by
// forcing a single propose_plan tool call, then decoding its arguments.
func GeneratePlan(ctx context.Context, transport completer, model, request string) (*TaskList, error) {
	req := llm.ChatRequest{
		Model: model,
		Messages: []llm.Message{
			{Role: "system", Content: plannerSystemPrompt},
			{Role: "user", Content: request},
		},
		Tools: []llm.ToolDefinition{{
			Name:        proposePlanToolName,
			Description: "Propose the ordered task list for this request.",
			Parameters:  proposePlanSchema(),
		}},
	}
	resp, err := transport.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("planning call failed: %w", err)
	}
	for _, tc := range resp.ToolCalls {
		if tc.Function.Name != proposePlanToolName {
			continue
		}
		var payload struct {
			Tasks []Task `json:"tasks"`
		}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &payload); err != nil {
			return nil, fmt.Errorf("invalid plan arguments: %w", err)
		}
		return &TaskList{Tasks: payload.Tasks}, nil
	}
	// No tool call means the model judged the request needs no plan —
	// a single generic task covering the whole request stands in for one.
	return &TaskList{Tasks: []Task{{ID: 0, Description: request, ToolHint: ToolHintGeneric}}}, nil
}

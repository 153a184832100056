package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/skilllite/skilllite/internal/llm"
)

func TestWriteOutputToolWritesWithinOutputDir(t *testing.T) {
	dir := t.TempDir()
	tool := WriteOutputTool{}
	ctx := &ExecutionContext{
		OutputDir: dir,
		Params:    map[string]any{"path": "report.txt", "content": "hello"},
	}
	result, err := tool.Execute(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	data, err := os.ReadFile(filepath.Join(dir, "report.txt"))
	if err != nil {
		t.Fatalf("expected file to be written: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected content %q, got %q", "hello", string(data))
	}
}

func TestWriteOutputToolRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	tool := WriteOutputTool{}
	ctx := &ExecutionContext{
		OutputDir: dir,
		Params:    map[string]any{"path": "../escape.txt", "content": "x"},
	}
	result, _ := tool.Execute(ctx)
	if result.Success {
		t.Fatal("expected escape attempt to fail")
	}
}

func TestUpdateTaskPlanToolReplacesTasksAndNotifiesSink(t *testing.T) {
	plan := &TaskList{Tasks: []Task{{ID: 0, Description: "old"}}}
	var notified []llm.Message
	tool := &UpdateTaskPlanTool{
		Plan: plan,
		Sink: func(m llm.Message) { notified = append(notified, m) },
	}
	ctx := &ExecutionContext{
		Params: map[string]any{
			"tasks": []any{
				map[string]any{"id": float64(0), "description": "new task", "tool_hint": "shell"},
			},
		},
	}
	result, err := tool.Execute(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if len(plan.Tasks) != 1 || plan.Tasks[0].Description != "new task" {
		t.Fatalf("expected plan to be replaced, got %+v", plan.Tasks)
	}
	if len(notified) != 1 {
		t.Fatalf("expected sink to be notified once, got %d", len(notified))
	}
}

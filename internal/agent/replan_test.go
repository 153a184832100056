package agent

import "testing"

func TestMaybeAutoReplanTriggersOnDriftKeywordOnce(t *testing.T) {
	s := newReplanState()
	task := &Task{ID: 3, Description: "read config.yaml"}
	result := &ToolResult{Success: false, Error: "open config.yaml: no such file or directory"}

	if !s.maybeAutoReplan(task, result) {
		t.Fatal("expected first drift failure to trigger a replan")
	}
	if s.maybeAutoReplan(task, result) {
		t.Fatal("expected second failure on the same task to not re-trigger (one replan per task)")
	}
}

func TestMaybeAutoReplanIgnoresSuccessAndUnrelatedFailures(t *testing.T) {
	s := newReplanState()
	task := &Task{ID: 1}

	if s.maybeAutoReplan(task, &ToolResult{Success: true}) {
		t.Fatal("expected success to never trigger a replan")
	}
	if s.maybeAutoReplan(task, &ToolResult{Success: false, Error: "network timeout"}) {
		t.Fatal("expected a non-drift failure to not trigger a replan")
	}
}

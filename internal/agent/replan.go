package agent

import "strings"

// driftKeywords are tool-failure phrases that suggest the current task's
// assumption about the world was wrong, not just that one call failed —
// ported from the plan-drift heuristic in
// original_source/skilllite/src/agent/agent_loop.rs.
var driftKeywords = []string{
	"no such file",
	"not found",
	"does not exist",
	"permission denied",
	"already exists",
	"escapes",
}

// replanState tracks the one-auto-replan-per-task cap.
type replanState struct {
	replannedTaskID map[int]bool
}

func newReplanState() *replanState {
	return &replanState{replannedTaskID: make(map[int]bool)}
}

// maybeAutoReplan decides whether a failed tool result, combined with the
// current task, warrants telling the model to revise the plan via
// update_task_plan instead of just feeding the error back — capped at one auto-replan
// per task so a persistently wrong plan doesn't loop forever.
func (s *replanState) maybeAutoReplan(task *Task, result *ToolResult) bool {
	if task == nil || result == nil || result.Success {
		return false
	}
	if s.replannedTaskID[task.ID] {
		return false
	}
	lowered := strings.ToLower(result.Error)
	for _, kw := range driftKeywords {
		if strings.Contains(lowered, kw) {
			s.replannedTaskID[task.ID] = true
			return true
		}
	}
	return false
}

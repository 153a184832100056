// Package agent is SkillLite's control loop: the simple and
// task-planning while-loops that drive the LLM/tool dispatch cycle,
// the built-in tool registry, and the middleware chain each tool
// invocation passes through.
package agent

// ToolHint classifies what kind of work a Task expects, driving both
// suppressed-streaming eligibility and focus-injection wording.
type ToolHint string

const (
	ToolHintAnalysis      ToolHint = "analysis"
	ToolHintFileOperation ToolHint = "file_operation"
	ToolHintShell         ToolHint = "shell"
	ToolHintGeneric       ToolHint = ""
)

// Task is one step of an LLM-produced task list.
type Task struct {
	ID          int      `json:"id"`
	Description string   `json:"description"`
	ToolHint    ToolHint `json:"tool_hint,omitempty"`
	Completed   bool     `json:"completed"`
}

// TaskList is the ordered plan the planning loop enforces discipline
// against, and which update_task_plan may replace mid-execution.
type TaskList struct {
	Tasks []Task `json:"tasks"`
}

// RequiresTool reports whether any task in the list expects an actual
// tool invocation rather than pure analysis — spec.md's "suppressed
// streaming on turn one" fires only when this is true.
func (tl *TaskList) RequiresTool() bool {
	for _, t := range tl.Tasks {
		if t.ToolHint != ToolHintAnalysis {
			return true
		}
	}
	return false
}

// NextPending returns the first incomplete task, or nil if all are done.
func (tl *TaskList) NextPending() *Task {
	for i := range tl.Tasks {
		if !tl.Tasks[i].Completed {
			return &tl.Tasks[i]
		}
	}
	return nil
}

// CurrentID returns the ID of the first incomplete task, or the ID past
// the last task if all are complete — used to enforce completion order
// ("a claim for task id K is ignored while current-task-id < K").
func (tl *TaskList) CurrentID() int {
	if t := tl.NextPending(); t != nil {
		return t.ID
	}
	if len(tl.Tasks) > 0 {
		return tl.Tasks[len(tl.Tasks)-1].ID + 1
	}
	return 0
}

// MarkCompleted marks the task with the given ID completed, enforcing
// that it cannot be claimed out of order (ID must equal CurrentID).
func (tl *TaskList) MarkCompleted(id int) bool {
	if id != tl.CurrentID() {
		return false
	}
	for i := range tl.Tasks {
		if tl.Tasks[i].ID == id {
			tl.Tasks[i].Completed = true
			return true
		}
	}
	return false
}

// AllCompleted reports whether every task in the list is done. An empty
// list is not "all completed" — it means no plan was ever produced.
func (tl *TaskList) AllCompleted() bool {
	if len(tl.Tasks) == 0 {
		return false
	}
	for _, t := range tl.Tasks {
		if !t.Completed {
			return false
		}
	}
	return true
}

package agent

import (
	"time"

	"github.com/skilllite/skilllite/internal/llm"
	"github.com/skilllite/skilllite/internal/policy"
)

// WiringOptions carries everything needed to assemble the default
// built-in tool registry, per spec.md §4.D.3's tool list.
type WiringOptions struct {
	Policy       *policy.Policy
	History      *History
	Plan         *TaskList
	PlanSink     func(llm.Message)
	ConfirmShell func(command string) bool
	ToolTimeouts map[string]time.Duration
}

// NewDefaultRegistry assembles the fixed built-in tool set behind the
// path-confinement, sensitive-path, and timeout middleware chain spec.md
// §4.D.3/§4.D.4 require of every built-in. Per-skill synthesized tools
// are registered separately by the caller once skill discovery runs.
func NewDefaultRegistry(opts WiringOptions) *Registry {
	pol := opts.Policy
	if pol == nil {
		pol = policy.Default()
	}

	timeouts := map[string]time.Duration{"run_command": runCommandTimeout}
	for name, d := range opts.ToolTimeouts {
		timeouts[name] = d
	}

	pathTools := []string{"path"}
	chain := Chain(
		WithPathConfinement(pathTools...),
		WithSensitivePathBlock(pol, pathTools...),
		Timeout(30*time.Second, timeouts),
	)

	r := NewRegistry(chain)
	r.Register(ReadFileTool{})
	r.Register(WriteFileTool{})
	r.Register(ListDirectoryTool{})
	r.Register(FileExistsTool{})
	r.Register(SearchReplaceTool{Policy: pol})
	r.Register(RunCommandTool{Policy: pol, Confirm: opts.ConfirmShell})
	r.Register(NewPreviewServerTool())
	r.Register(WriteOutputTool{})
	r.Register(ListOutputTool{})
	r.Register(ChatHistoryTool{History: opts.History})
	r.Register(ChatPlanTool{Plan: opts.Plan})

	r.Register(&UpdateTaskPlanTool{Plan: opts.Plan, Sink: opts.PlanSink})

	return r
}

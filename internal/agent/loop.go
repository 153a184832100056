package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/skilllite/skilllite/internal/llm"
	"github.com/skilllite/skilllite/internal/tracing"
)

// SkillDocProvider resolves a skill tool's name to its SKILL.md body, for
// progressive disclosure. Skills that aren't documented-on-first-use
// tools return ("", false).
type SkillDocProvider func(toolName string) (doc string, isSkill bool)

// completer is the subset of *llm.Transport the control loop depends on,
// kept as an interface so tests can supply a stub without a live
// provider.
type completer interface {
	Complete(ctx context.Context, req llm.ChatRequest) (llm.Response, error)
	CompleteStream(ctx context.Context, req llm.ChatRequest, sink llm.StreamSink) (llm.Response, error)
}

// Config wires everything the control loop needs: the LLM transport, the
// tool registry, conversation history, and the tunables spec.md §4.D
// names explicitly (iteration budgets, retry caps, context-recovery
// limits).
type Config struct {
	Transport completer
	Model     string
	Registry  *Registry
	History   *History
	WorkDir   string
	OutputDir string
	SessionID string

	GlobalMaxIterations     int
	MaxToolCallsPerTask     int
	MaxNoToolRetries        int
	ContextRecoveryMaxChars int
	ContextRecoveryRetries  int

	Sink         llm.StreamSink
	Summarize    summarizer
	SkillDoc     SkillDocProvider
	OnPlanUpdate func(TaskList)
}

// completionPattern recognizes "Task N completed" style claims in the
// assistant's text, per spec.md §4.D.2's completion claim validation.
var completionPattern = regexp.MustCompile(`(?i)task\s+(\d+)\s+completed`)

// ToolCallStat records one dispatched tool call for the turn's decision
// record (spec.md §3's tools_detail JSON column).
type ToolCallStat struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
}

// Stats summarizes one Run call for the evolution engine's decision log
// (spec.md §3's Decision Record: tool counts, replans, elapsed_ms,
// task_completed flag, tools_detail). Populated as Run executes and
// readable via Loop.Stats once Run returns.
type Stats struct {
	ToolCalls   int
	Replanned   bool
	Completed   bool
	ElapsedMS   int64
	ToolsDetail []ToolCallStat
}

// Loop drives either the simple while-loop or the task-planning loop
// depending on whether a plan is supplied.
type Loop struct {
	cfg   Config
	plan  *TaskList
	re    *replanState
	stats Stats
}

// NewLoop builds a Loop. plan may be nil, in which case Run executes the
// simple loop (spec.md §4.D.1); a non-nil plan selects the task-planning
// loop (§4.D.2).
func NewLoop(cfg Config, plan *TaskList) *Loop {
	if cfg.GlobalMaxIterations <= 0 {
		cfg.GlobalMaxIterations = 50
	}
	if cfg.MaxToolCallsPerTask <= 0 {
		cfg.MaxToolCallsPerTask = 10
	}
	if cfg.MaxNoToolRetries <= 0 {
		cfg.MaxNoToolRetries = 2
	}
	if cfg.ContextRecoveryMaxChars <= 0 {
		cfg.ContextRecoveryMaxChars = 2000
	}
	if cfg.ContextRecoveryRetries <= 0 {
		cfg.ContextRecoveryRetries = 3
	}
	return &Loop{cfg: cfg, plan: plan, re: newReplanState()}
}

// Stats returns the turn's tool-call/replan/completion counters, valid
// once Run has returned.
func (l *Loop) Stats() Stats {
	return l.stats
}

// budget computes the planning loop's iteration cap: min(global max,
// num_tasks * max_tool_calls_per_task), per spec.md §4.D.2.
func (l *Loop) budget() int {
	if l.plan == nil || len(l.plan.Tasks) == 0 {
		return l.cfg.GlobalMaxIterations
	}
	perTask := len(l.plan.Tasks) * l.cfg.MaxToolCallsPerTask
	if perTask < l.cfg.GlobalMaxIterations {
		return perTask
	}
	return l.cfg.GlobalMaxIterations
}

// Run executes the control loop to completion, returning the assistant's
// final text response.
func (l *Loop) Run(ctx context.Context) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "agent.loop.run")
	defer span.End()

	start := time.Now()
	l.stats = Stats{}
	defer func() { l.stats.ElapsedMS = time.Since(start).Milliseconds() }()

	maxIterations := l.budget()
	noToolRetries := 0
	callsSinceLastCompletion := 0
	taskDepth := 0

	for iteration := 0; iteration < maxIterations; iteration++ {
		if l.plan != nil && l.plan.AllCompleted() {
			break
		}

		l.injectFocus(iteration)

		suppressStream := iteration == 0 && l.plan != nil && l.plan.RequiresTool()
		resp, err := l.complete(ctx, suppressStream)
		if err != nil {
			return "", fmt.Errorf("llm call failed: %w", err)
		}

		assistantMsg := llm.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls}

		if len(resp.ToolCalls) == 0 {
			// Apply any completion claims in the text before judging
			// whether this is a hallucinated "done" — a claim backed by
			// a tool call since the last completion batch (or an
			// analysis-hint task) is legitimate even without a fresh
			// tool call this turn.
			l.applyCompletionClaims(resp.Content, callsSinceLastCompletion)

			if l.plan != nil && !l.plan.AllCompleted() && noToolRetries < l.cfg.MaxNoToolRetries {
				// Hallucination guard: a text-only response while tasks
				// remain outstanding is discarded and corrected rather
				// than accepted as completion.
				noToolRetries++
				l.cfg.History.Append(llm.Message{
					Role:    "user",
					Content: "The plan still has incomplete tasks. Use a tool call to make progress, don't just describe what you would do.",
				})
				continue
			}
			l.cfg.History.Append(assistantMsg)
			l.stats.Completed = true
			return resp.Content, nil
		}

		noToolRetries = 0
		l.cfg.History.Append(assistantMsg)

		toolRan := false
		for _, tc := range resp.ToolCalls {
			handled, err := l.dispatchToolCall(ctx, tc)
			if err != nil {
				return "", err
			}
			if handled {
				toolRan = true
			}
		}
		if toolRan {
			callsSinceLastCompletion++
			taskDepth++
		}

		if l.applyCompletionClaims(resp.Content, callsSinceLastCompletion) {
			callsSinceLastCompletion = 0
			taskDepth = 0
		}

		// Per-task depth limit: if a task has absorbed
		// MaxToolCallsPerTask calls with no completion signal, ask the
		// model to summarize and move on rather than spin forever.
		if l.plan != nil && taskDepth >= l.cfg.MaxToolCallsPerTask {
			if t := l.plan.NextPending(); t != nil {
				l.cfg.History.Append(llm.Message{
					Role: "user",
					Content: fmt.Sprintf(
						"Task %d has taken %d tool calls without being marked completed. Summarize what you've learned and either complete it now or call update_task_plan to revise the approach.",
						t.ID, taskDepth),
				})
			}
			taskDepth = 0
		}
	}

	return "", fmt.Errorf("control loop exhausted its %d-iteration budget without completing", maxIterations)
}

// complete performs either a streaming or non-streaming call depending on
// suppressStream (spec.md §4.D.2's "suppressed streaming on turn one"),
// wrapped in context-overflow recovery.
func (l *Loop) complete(ctx context.Context, suppressStream bool) (llm.Response, error) {
	req := llm.ChatRequest{
		Model:    l.cfg.Model,
		Messages: l.cfg.History.Messages(),
		Tools:    l.cfg.Registry.Definitions(),
	}
	call := func() (llm.Response, error) {
		if suppressStream || l.cfg.Sink == nil {
			return l.cfg.Transport.Complete(ctx, req)
		}
		return l.cfg.Transport.CompleteStream(ctx, req, l.cfg.Sink)
	}
	return withContextOverflowRecovery(l.cfg.History, l.cfg.ContextRecoveryMaxChars, l.cfg.ContextRecoveryRetries, call)
}

// dispatchToolCall handles progressive disclosure, executes the tool
// through the registry, applies long-result handling, and appends the
// tool-role result message. It returns handled=false when progressive
// disclosure retracted the call and the caller should re-iterate instead
// of treating this as a completed tool run.
func (l *Loop) dispatchToolCall(ctx context.Context, tc llm.ToolCall) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "agent.tool."+tc.Function.Name)
	defer span.End()

	if l.cfg.SkillDoc != nil {
		if doc, isSkill := l.cfg.SkillDoc(tc.Function.Name); isSkill && !l.cfg.History.HasDocumented(tc.Function.Name) {
			// First invocation of a skill: retract the pending tool call,
			// inject its SKILL.md, and let the model re-issue the call
			// now that it has the documentation (spec.md §4.D.4).
			l.cfg.History.PopLast()
			l.cfg.History.Append(llm.Message{Role: "user", Content: "Skill documentation for " + tc.Function.Name + ":\n" + doc})
			l.cfg.History.MarkDocumented(tc.Function.Name)
			return false, nil
		}
	}

	params, perr := parseToolArguments(tc.Function.Name, tc.Function.Arguments)
	execCtx := &ExecutionContext{
		Context:   ctx,
		ToolName:  tc.Function.Name,
		SessionID: l.cfg.SessionID,
		CallID:    tc.ID,
		Params:    params,
		WorkDir:   l.cfg.WorkDir,
		OutputDir: l.cfg.OutputDir,
	}

	var result *ToolResult
	var err error
	if perr != nil {
		result = &ToolResult{Success: false, Error: fmt.Sprintf("failed to parse tool arguments: %v", perr)}
	} else {
		result, err = l.cfg.Registry.Dispatch(execCtx)
		if err != nil {
			return false, fmt.Errorf("tool %s dispatch error: %w", tc.Function.Name, err)
		}
	}

	if l.plan != nil {
		if task := l.plan.NextPending(); task != nil && l.re.maybeAutoReplan(task, result) {
			result.Error += "\n[auto-replan triggered: this failure suggests the current plan's assumption was wrong; call update_task_plan to revise it]"
			l.stats.Replanned = true
		}
	}
	if tc.Function.Name == "update_task_plan" {
		l.stats.Replanned = true
	}
	l.stats.ToolCalls++
	l.stats.ToolsDetail = append(l.stats.ToolsDetail, ToolCallStat{Name: tc.Function.Name, Success: result.Success})

	content := result.Output
	if !result.Success {
		content = "error: " + result.Error
	}
	content = handleLongResult(ctx, tc.Function.Name, content, l.cfg.Summarize)

	l.cfg.History.Append(llm.Message{Role: "tool", Content: content, ToolCallID: tc.ID, Name: tc.Function.Name})
	return true, nil
}

// parseToolArguments decodes a tool call's JSON arguments, falling back
// to regex reconstruction for write_file/write_output when the model
// emits truncated JSON (spec.md §4.D.4).
func parseToolArguments(toolName, raw string) (map[string]any, error) {
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err == nil {
		return params, nil
	}
	if toolName == "write_file" || toolName == "write_output" {
		if recovered, ok := recoverTruncatedWriteArgs(raw); ok {
			return recovered, nil
		}
	}
	return nil, fmt.Errorf("could not parse arguments: %q", raw)
}

var (
	truncatedPathPattern    = regexp.MustCompile(`"path"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	truncatedContentPattern = regexp.MustCompile(`"content"\s*:\s*"((?:[^"\\]|\\.)*)`)
)

// recoverTruncatedWriteArgs reconstructs path/content from the head of a
// malformed JSON arguments string by matching field patterns directly
// rather than requiring a balanced document.
func recoverTruncatedWriteArgs(raw string) (map[string]any, bool) {
	pathMatch := truncatedPathPattern.FindStringSubmatch(raw)
	contentMatch := truncatedContentPattern.FindStringSubmatch(raw)
	if pathMatch == nil || contentMatch == nil {
		return nil, false
	}
	unescape := func(s string) string {
		s = strings.ReplaceAll(s, `\n`, "\n")
		s = strings.ReplaceAll(s, `\t`, "\t")
		s = strings.ReplaceAll(s, `\"`, `"`)
		return strings.ReplaceAll(s, `\\`, `\`)
	}
	return map[string]any{
		"path":    unescape(pathMatch[1]),
		"content": unescape(contentMatch[1]),
	}, true
}

// applyCompletionClaims scans assistant text for "Task N completed"
// markers and applies them only when a tool call has actually executed
// since the last completion batch, or the task is analysis-only — the
// completion-claim-validation rule of spec.md §4.D.2.
func (l *Loop) applyCompletionClaims(text string, callsSinceLastCompletion int) bool {
	if l.plan == nil {
		return false
	}
	completedAny := false
	for _, m := range completionPattern.FindAllStringSubmatch(text, -1) {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		task := l.taskByID(id)
		if task == nil {
			continue
		}
		if task.ToolHint != ToolHintAnalysis && callsSinceLastCompletion == 0 {
			continue
		}
		if l.plan.MarkCompleted(id) {
			completedAny = true
		}
	}
	if completedAny && l.cfg.OnPlanUpdate != nil {
		l.cfg.OnPlanUpdate(*l.plan)
	}
	return completedAny
}

func (l *Loop) taskByID(id int) *Task {
	if l.plan == nil {
		return nil
	}
	for i := range l.plan.Tasks {
		if l.plan.Tasks[i].ID == id {
			return &l.plan.Tasks[i]
		}
	}
	return nil
}

// injectFocus appends a system message naming the plan's state and the
// next task, imperatively worded for file_operation/shell hints, per
// spec.md §4.D.2's focus injection.
func (l *Loop) injectFocus(iteration int) {
	if l.plan == nil {
		return
	}
	task := l.plan.NextPending()
	if task == nil {
		return
	}
	done, total := 0, len(l.plan.Tasks)
	for _, t := range l.plan.Tasks {
		if t.Completed {
			done++
		}
	}
	wording := task.Description
	switch task.ToolHint {
	case ToolHintFileOperation:
		wording = "Perform this file operation now: " + task.Description
	case ToolHintShell:
		wording = "Run the command needed for: " + task.Description
	}
	l.cfg.History.Append(llm.Message{
		Role:    "system",
		Content: fmt.Sprintf("Plan progress: %d/%d tasks complete. Current task (id %d): %s", done, total, task.ID, wording),
	})
}

package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/skilllite/skilllite/internal/errs"
	"github.com/skilllite/skilllite/internal/policy"
	"github.com/skilllite/skilllite/internal/sandbox"
	"github.com/skilllite/skilllite/internal/skill"
)

// SkillTool adapts one skill.Skill into the Tool interface, generalizing
// pkg/skill's loaded-skill-as-prompt-fragment idiom into an executable
// tool call: the synthesized schema becomes the LLM-visible signature,
// and Execute shells out through internal/sandbox at the tool's Level
// (RegisterSkills sets LevelStrict for every skill).
type SkillTool struct {
	Skill   *skill.Skill
	Sandbox *sandbox.Sandbox
	Policy  *policy.Policy
	Level   sandbox.Level
}

func (t *SkillTool) Name() string        { return t.Skill.ToolName() }
func (t *SkillTool) Description() string { return t.Skill.Description }

// Schema synthesizes the tool's JSON schema: an argparse-derived shape
// for Python script-entry skills (best-effort regex over add_argument
// calls), and a flexible any-property object for every other kind —
// bash-tool and multi-script skills expose too irregular a surface for
// static extraction, and prompt-only skills take no arguments at all.
func (t *SkillTool) Schema() json.RawMessage {
	if t.Skill.Kind() == skill.KindScriptEntry && strings.EqualFold(t.Skill.Language, "python") {
		if schema, ok := pythonArgparseSchema(t.Skill.Dir, t.Skill.EntryPoint); ok {
			return schema
		}
	}
	if t.Skill.Kind() == skill.KindPromptOnly {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return json.RawMessage(`{"type":"object","additionalProperties":true}`)
}

// Execute runs the skill's entry point under sandbox isolation, passing
// Params as the invocation's JSON stdin payload per spec.md §3's
// input-on-stdin contract.
func (t *SkillTool) Execute(ctx *ExecutionContext) (*ToolResult, error) {
	if t.Skill.Kind() == skill.KindPromptOnly {
		return &ToolResult{Success: true, Output: t.Skill.Content}, nil
	}

	inputJSON, err := json.Marshal(ctx.Params)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeInvalidInput, "marshaling skill invocation params")
	}

	netMode, netDomains := policy.ResolveNetwork(t.Skill.Network.Enabled, t.Skill.Network.Outbound)
	cfg := sandbox.Config{
		SkillDir:       t.Skill.Dir,
		WorkDir:        ctx.WorkDir,
		Level:          t.Level,
		Limits:         sandbox.DefaultLimits(),
		NetworkMode:    netMode,
		NetworkDomains: netDomains,
	}

	entry := filepath.Join(t.Skill.Dir, t.Skill.EntryPoint)
	result, err := t.Sandbox.Run(ctx.Context, entry, nil, string(inputJSON), cfg)
	if err != nil {
		return nil, err
	}
	return &ToolResult{
		Success: result.ExitCode == 0,
		Output:  result.FormatForLLM(),
		Data:    map[string]any{"exit_code": result.ExitCode},
	}, nil
}

// RegisterSkills adds one SkillTool per skill in reg to the registry,
// and returns a SkillDocProvider backing the control loop's progressive
// disclosure (spec.md §4.D.4: on a skill's first call, the pending
// assistant tool-call message is popped and SKILL.md is injected in its
// place).
func RegisterSkills(registry *Registry, reg *skill.Registry, sb *sandbox.Sandbox, pol *policy.Policy) SkillDocProvider {
	for _, s := range reg.List() {
		if s.Archived {
			continue
		}
		registry.Register(&SkillTool{Skill: s, Sandbox: sb, Policy: pol, Level: sandbox.LevelStrict})
	}

	return func(toolName string) (string, bool) {
		for _, s := range reg.List() {
			if s.ToolName() == toolName {
				return skillDoc(s), true
			}
		}
		return "", false
	}
}

func skillDoc(s *skill.Skill) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n", s.Name, s.Description)
	if s.Content != "" {
		b.WriteString("\n")
		b.WriteString(s.Content)
	}
	return b.String()
}

var argparseRe = regexp.MustCompile(`add_argument\(\s*["']--?([a-zA-Z0-9_-]+)["'][^)]*\)`)

// pythonArgparseSchema best-effort-extracts --flag names from an
// argparse-style Python entry point by scanning for add_argument(...)
// calls, producing a flat object schema of optional string properties.
// Anything it can't confidently parse (no matches) falls back to the
// flexible any-property schema the caller applies instead.
func pythonArgparseSchema(dir, entryPoint string) (json.RawMessage, bool) {
	data, err := os.ReadFile(filepath.Join(dir, entryPoint))
	if err != nil {
		return nil, false
	}
	matches := argparseRe.FindAllStringSubmatch(string(data), -1)
	if len(matches) == 0 {
		return nil, false
	}
	props := make(map[string]any, len(matches))
	for _, m := range matches {
		name := strings.ReplaceAll(m[1], "-", "_")
		props[name] = map[string]any{"type": "string"}
	}
	schema := map[string]any{"type": "object", "properties": props}
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, false
	}
	return b, true
}

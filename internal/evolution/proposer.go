package evolution

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skilllite/skilllite/internal/llm"
)

// completer is the subset of *llm.Transport the proposer needs, kept as
// an interface for the same testability reason as internal/agent's.
type completer interface {
	Complete(ctx context.Context, req llm.ChatRequest) (llm.Response, error)
}

// Proposer turns Patterns into candidate mutations by calling the LLM,
// generalizing pkg/dream/generator.go's Generator (which turns a static
// CodebaseAnalysis into DreamIdeas) from codebase ideas to evolved
// rules/examples/skills.
type Proposer struct {
	transport completer
	model     string
}

func NewProposer(transport completer, model string) *Proposer {
	return &Proposer{transport: transport, model: model}
}

// Rule is one evolved planning rule, matching spec.md's rules.json shape.
type Rule struct {
	ID       string `json:"id"`
	Priority int    `json:"priority"`
	Text     string `json:"text"`
}

// Example is one evolved few-shot example, matching examples.json.
type Example struct {
	ID      string `json:"id"`
	Prompt  string `json:"prompt"`
	Outcome string `json:"outcome"`
}

const proposeRulesToolName = "propose_rules"

// ProposeRules asks the LLM to extract rules/examples worth keeping from
// the observed decision patterns, per spec.md §4.E.5's prompt evolution
// operation.
func (p *Proposer) ProposeRules(ctx context.Context, patterns Patterns) ([]Rule, []Example, error) {
	schema := schemaObject(map[string]any{
		"rules": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":       map[string]any{"type": "string"},
					"priority": map[string]any{"type": "integer"},
					"text":     map[string]any{"type": "string"},
				},
			},
		},
		"examples": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":      map[string]any{"type": "string"},
					"prompt":  map[string]any{"type": "string"},
					"outcome": map[string]any{"type": "string"},
				},
			},
		},
	})
	prompt := fmt.Sprintf(
		"Across %d meaningful decisions, %d failures, and %d replans, identify generalizable planning rules and few-shot examples worth remembering. Respond only by calling %s.",
		patterns.Counts.Meaningful, patterns.Counts.Failures, patterns.Counts.Replans, proposeRulesToolName,
	)
	req := llm.ChatRequest{
		Model:    p.model,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
		Tools: []llm.ToolDefinition{{
			Name:        proposeRulesToolName,
			Description: "Propose evolved rules and examples.",
			Parameters:  schema,
		}},
	}
	resp, err := p.transport.Complete(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("propose rules: %w", err)
	}
	for _, tc := range resp.ToolCalls {
		if tc.Function.Name != proposeRulesToolName {
			continue
		}
		var payload struct {
			Rules    []Rule    `json:"rules"`
			Examples []Example `json:"examples"`
		}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &payload); err != nil {
			return nil, nil, fmt.Errorf("decode proposed rules: %w", err)
		}
		return payload.Rules, payload.Examples, nil
	}
	return nil, nil, nil
}

// SkillProposal is a candidate generated skill, matching spec.md §4.E.5's
// {name, description, entry_point, script_content, skill_md_content}.
type SkillProposal struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	EntryPoint     string `json:"entry_point"`
	ScriptContent  string `json:"script_content"`
	SkillMDContent string `json:"skill_md_content"`
}

const proposeSkillToolName = "propose_skill"

func skillProposalSchema() json.RawMessage {
	return schemaObject(map[string]any{
		"name":             map[string]any{"type": "string"},
		"description":      map[string]any{"type": "string"},
		"entry_point":       map[string]any{"type": "string"},
		"script_content":    map[string]any{"type": "string"},
		"skill_md_content":  map[string]any{"type": "string"},
	})
}

// ProposeSkill asks the LLM to generate a new skill for a repeated task
// pattern, capped at 150 lines of script: acceptSkillProposal rejects
// longer scripts (the gatekeeper's L2 cap counts skills per transaction,
// not lines).
func (p *Proposer) ProposeSkill(ctx context.Context, pattern RepeatedTaskPattern) (*SkillProposal, error) {
	prompt := fmt.Sprintf(
		"The task %q has recurred %d times with a %.0f%% success rate. Generate a reusable skill for it: a short Python or shell script (at most 150 lines) plus a SKILL.md. Respond only by calling %s.",
		pattern.TaskDescription, pattern.Count, pattern.SuccessRate*100, proposeSkillToolName,
	)
	return p.callSkillTool(ctx, prompt)
}

// RefineSkill asks the LLM to fix a failing evolved skill, given recent
// error traces, per spec.md §4.E.5's skill refinement operation.
func (p *Proposer) RefineSkill(ctx context.Context, skillName string, errorTraces []string) (*SkillProposal, error) {
	prompt := fmt.Sprintf(
		"The evolved skill %q has been failing. Recent errors:\n%s\nPropose a fixed script and SKILL.md. Respond only by calling %s.",
		skillName, joinTraces(errorTraces), proposeSkillToolName,
	)
	return p.callSkillTool(ctx, prompt)
}

func (p *Proposer) callSkillTool(ctx context.Context, prompt string) (*SkillProposal, error) {
	req := llm.ChatRequest{
		Model:    p.model,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
		Tools: []llm.ToolDefinition{{
			Name:        proposeSkillToolName,
			Description: "Propose a generated or refined skill.",
			Parameters:  skillProposalSchema(),
		}},
	}
	resp, err := p.transport.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("propose skill: %w", err)
	}
	for _, tc := range resp.ToolCalls {
		if tc.Function.Name != proposeSkillToolName {
			continue
		}
		var proposal SkillProposal
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &proposal); err != nil {
			return nil, fmt.Errorf("decode skill proposal: %w", err)
		}
		return &proposal, nil
	}
	return nil, nil
}

func joinTraces(traces []string) string {
	out := ""
	for i, t := range traces {
		if i > 0 {
			out += "\n"
		}
		out += "- " + t
	}
	return out
}

func schemaObject(props map[string]any) json.RawMessage {
	obj := map[string]any{"type": "object", "properties": props}
	b, _ := json.Marshal(obj)
	return b
}

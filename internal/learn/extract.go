package learn

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skilllite/skilllite/internal/llm"
)

// ExtractedRule is one candidate rule mined from fetched Articles, ready
// for internal/evolution's L3 content scan and rules.json merge.
// ids must start with "ext_" and priority is clamped to [45,55], per
// spec.md §4.E.5.
type ExtractedRule struct {
	ID       string `json:"id"`
	Priority int    `json:"priority"`
	Text     string `json:"text"`
}

// completer is the llm.Transport subset extract needs, matching the
// same narrow-interface pattern internal/agent and internal/evolution
// use for testability without a live provider.
type completer interface {
	Complete(ctx context.Context, req llm.ChatRequest) (llm.Response, error)
}

const extractRulesToolName = "propose_external_rules"

// ExtractRules asks the LLM to mine generalizable rules from fetched
// articles, then normalizes every id to an "ext_" prefix and clamps
// priority into [45,55] regardless of what the model returned — the
// clamp is enforced here, not trusted to the model.
func ExtractRules(ctx context.Context, transport completer, model string, articles []Article) ([]ExtractedRule, error) {
	if len(articles) == 0 {
		return nil, nil
	}
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
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
		},
	}
	schemaBytes, _ := json.Marshal(schema)

	prompt := fmt.Sprintf(
		"From these %d externally fetched articles, extract generalizable agent-planning rules. Respond only by calling %s.\n\n%s",
		len(articles), extractRulesToolName, renderArticles(articles),
	)
	req := llm.ChatRequest{
		Model:    model,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
		Tools: []llm.ToolDefinition{{
			Name:        extractRulesToolName,
			Description: "Propose rules extracted from external sources.",
			Parameters:  schemaBytes,
		}},
	}
	resp, err := transport.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("extract external rules: %w", err)
	}
	for _, tc := range resp.ToolCalls {
		if tc.Function.Name != extractRulesToolName {
			continue
		}
		var payload struct {
			Rules []ExtractedRule `json:"rules"`
		}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &payload); err != nil {
			return nil, fmt.Errorf("decode extracted rules: %w", err)
		}
		for i := range payload.Rules {
			normalizeExtractedRule(&payload.Rules[i])
		}
		return payload.Rules, nil
	}
	return nil, nil
}

func normalizeExtractedRule(r *ExtractedRule) {
	if len(r.ID) < 4 || r.ID[:4] != "ext_" {
		r.ID = "ext_" + r.ID
	}
	switch {
	case r.Priority < 45:
		r.Priority = 45
	case r.Priority > 55:
		r.Priority = 55
	}
}

func renderArticles(articles []Article) string {
	out := ""
	for i, a := range articles {
		if i >= 10 {
			break // cap prompt size; a single run fetches at most 3 sources anyway
		}
		out += fmt.Sprintf("- %s: %s\n", a.Title, truncate(a.Body, 500))
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

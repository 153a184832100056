package evolution

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skilllite/skilllite/internal/llm"
)

// fakeCompleter answers propose_rules with one rule and one example, and
// propose_skill with nothing, so tests exercise the prompt-evolution path
// without needing a real model.
type fakeCompleter struct {
	ruleID string
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.ChatRequest) (llm.Response, error) {
	if len(req.Tools) == 0 {
		return llm.Response{}, nil
	}
	switch req.Tools[0].Name {
	case proposeRulesToolName:
		args := `{"rules":[{"id":"` + f.ruleID + `","priority":50,"text":"always ask before deleting files"}],"examples":[{"id":"ex1","prompt":"delete the logs","outcome":"confirmed before deleting"}]}`
		return llm.Response{
			ToolCalls: []llm.ToolCall{{
				Function: llm.FunctionCall{Name: proposeRulesToolName, Arguments: args},
			}},
			FinishReason: llm.FinishToolCalls,
		}, nil
	case proposeSkillToolName:
		return llm.Response{FinishReason: llm.FinishStop}, nil
	}
	return llm.Response{}, nil
}

func seedDecisions(t *testing.T, dbPath string, n int, failures int) {
	t.Helper()
	require.NoError(t, WithStore(dbPath, func(s *Store) error {
		for i := 0; i < n; i++ {
			_, err := s.RecordDecision(DecisionRecord{
				ChatRoot:        "test",
				TaskDescription: "clean up log files",
				ToolCallCount:   3,
				Success:         i >= failures,
			}, nil)
			if err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestRunEvolutionPromptPath(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(root, "memory", "default.sqlite")
	seedDecisions(t, dbPath, 6, 2)

	cfg := Config{
		ChatRoot:  root,
		DBPath:    dbPath,
		Trigger:   DefaultTriggerConfig(),
		Model:     "test-model",
		Transport: &fakeCompleter{ruleID: "rule_no_delete"},
	}

	txnID, err := RunEvolution(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, txnID)
	require.Contains(t, *txnID, "evo_")

	rules, err := LoadRules(cfg.promptsDir())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, "rule_no_delete", rules[0].ID)

	examples, err := LoadExamples(cfg.promptsDir())
	require.NoError(t, err)
	require.Len(t, examples, 1)

	_, err = os.Stat(filepath.Join(root, "evolution.log"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "DECISIONS.md"))
	require.NoError(t, err)
}

func TestRunEvolutionNoOpWithoutEnoughDecisions(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(root, "memory", "default.sqlite")
	seedDecisions(t, dbPath, 1, 0)

	cfg := Config{
		ChatRoot:  root,
		DBPath:    dbPath,
		Trigger:   DefaultTriggerConfig(),
		Model:     "test-model",
		Transport: &fakeCompleter{ruleID: "rule_x"},
	}

	txnID, err := RunEvolution(context.Background(), cfg)
	require.NoError(t, err)
	require.Nil(t, txnID)
}

func TestRunEvolutionMutexPreventsConcurrentRuns(t *testing.T) {
	require.True(t, tryAcquire())
	defer release()

	root := t.TempDir()
	dbPath := filepath.Join(root, "memory", "default.sqlite")
	seedDecisions(t, dbPath, 6, 2)

	cfg := Config{ChatRoot: root, DBPath: dbPath, Trigger: DefaultTriggerConfig(), Transport: &fakeCompleter{ruleID: "r1"}}
	txnID, err := RunEvolution(context.Background(), cfg)
	require.NoError(t, err)
	require.Nil(t, txnID)
}

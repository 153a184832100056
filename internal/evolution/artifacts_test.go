package evolution

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadSaveRulesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rules, err := LoadRules(dir)
	require.NoError(t, err)
	require.Nil(t, rules)

	want := []Rule{{ID: "r1", Priority: 10, Text: "always confirm before deleting"}}
	require.NoError(t, SaveRules(dir, want))

	got, err := LoadRules(dir)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestMergeRulesDedupAndCap(t *testing.T) {
	existing := make([]Rule, maxEvolvedRules-1)
	for i := range existing {
		existing[i] = Rule{ID: "r" + string(rune('a'+i%26)) + string(rune(i))}
	}
	candidates := []Rule{
		{ID: existing[0].ID}, // duplicate, dropped silently (not counted)
		{ID: "new1"},
		{ID: "new2"},
	}
	merged, dropped := MergeRules(existing, candidates)
	require.Len(t, merged, maxEvolvedRules)
	require.Equal(t, 1, dropped)
}

func TestMergeExamplesDedup(t *testing.T) {
	existing := []Example{{ID: "e1", Prompt: "p", Outcome: "o"}}
	candidates := []Example{{ID: "e1", Prompt: "dup", Outcome: "dup"}, {ID: "e2", Prompt: "p2", Outcome: "o2"}}
	merged := MergeExamples(existing, candidates)
	require.Len(t, merged, 2)
	require.Equal(t, "p", merged[0].Prompt)
	require.Equal(t, "e2", merged[1].ID)
}

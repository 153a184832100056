package evolution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecideDisabled(t *testing.T) {
	cfg := DefaultTriggerConfig()
	cfg.Mode = ModeDisabled
	d := Decide(cfg, 0, time.Time{}, DecisionCounts{}, false)
	require.False(t, d.SkillsAllowed)
	require.False(t, d.MemoryAllowed)
	require.False(t, d.PromptsAllowed)
	require.NotEmpty(t, d.SkipReason)
}

func TestDecideDailyCap(t *testing.T) {
	cfg := DefaultTriggerConfig()
	d := Decide(cfg, cfg.DailyCap, time.Time{}, DecisionCounts{Meaningful: 100, Failures: 100, Replans: 100}, true)
	require.False(t, d.SkillsAllowed)
	require.Equal(t, "daily mutation cap reached", d.SkipReason)
}

func TestDecideMinInterval(t *testing.T) {
	cfg := DefaultTriggerConfig()
	d := Decide(cfg, 0, time.Now(), DecisionCounts{Meaningful: 100, Failures: 100}, true)
	require.False(t, d.MemoryAllowed)
	require.Equal(t, "minimum interval since last mutation not elapsed", d.SkipReason)
}

func TestDecideDimensionGates(t *testing.T) {
	cfg := DefaultTriggerConfig()
	last := time.Now().Add(-2 * time.Hour)

	d := Decide(cfg, 0, last, DecisionCounts{Meaningful: 3}, false)
	require.True(t, d.MemoryAllowed)
	require.False(t, d.PromptsAllowed)
	require.False(t, d.SkillsAllowed)

	d = Decide(cfg, 0, last, DecisionCounts{Meaningful: 5, Failures: 2}, false)
	require.True(t, d.PromptsAllowed)

	d = Decide(cfg, 0, last, DecisionCounts{}, true)
	require.True(t, d.SkillsAllowed)

	d = Decide(cfg, 0, last, DecisionCounts{}, false)
	require.False(t, d.SkillsAllowed)
	require.False(t, d.MemoryAllowed)
	require.False(t, d.PromptsAllowed)
	require.Equal(t, "sample size gates not met for any enabled dimension", d.SkipReason)
}

func TestDecideModeRestriction(t *testing.T) {
	cfg := DefaultTriggerConfig()
	cfg.Mode = ModeSkillsOnly
	last := time.Now().Add(-2 * time.Hour)
	d := Decide(cfg, 0, last, DecisionCounts{Meaningful: 10, Failures: 10}, false)
	require.False(t, d.MemoryAllowed)
	require.False(t, d.PromptsAllowed)
}

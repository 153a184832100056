package evolution

import "time"

// Mode selects which evolution dimensions are allowed to fire, per
// spec.md §4.E.2's config-driven mode value.
type Mode string

const (
	ModeAll         Mode = "all"
	ModeDisabled    Mode = "disabled"
	ModePromptsOnly Mode = "prompts-only"
	ModeMemoryOnly  Mode = "memory-only"
	ModeSkillsOnly  Mode = "skills-only"
)

// TriggerConfig carries the gates spec.md §4.E.2 names explicitly,
// generalizing pkg/ralph/rate_limit.go's calendar-day mutation-budget
// idiom (there applied to API calls, here to mutations).
type TriggerConfig struct {
	Mode                   Mode
	DailyCap               int
	MinInterval            time.Duration
	MinMeaningfulForMemory int
	MinMeaningfulForPrompt int
	MinFailuresForPrompt   int
}

// DefaultTriggerConfig matches spec.md §4.E.2's stated defaults.
func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		Mode:                   ModeAll,
		DailyCap:               20,
		MinInterval:            time.Hour,
		MinMeaningfulForMemory: 3,
		MinMeaningfulForPrompt: 5,
		MinFailuresForPrompt:   2,
	}
}

// Decision reports which dimensions the triggering policy allows to run
// this cycle, and why not for the ones it doesn't.
type Decision struct {
	SkillsAllowed  bool
	MemoryAllowed  bool
	PromptsAllowed bool
	SkipReason     string // set when nothing is allowed
}

// Decide evaluates the daily cap, minimum interval, and per-dimension
// sample-size gates against current counts, per spec.md §4.E.2.
func Decide(cfg TriggerConfig, mutationsToday int, lastMutation time.Time, counts DecisionCounts, hasRepeatedPattern bool) Decision {
	if cfg.Mode == ModeDisabled {
		return Decision{SkipReason: "evolution disabled by config"}
	}
	if mutationsToday >= cfg.DailyCap {
		return Decision{SkipReason: "daily mutation cap reached"}
	}
	if !lastMutation.IsZero() && time.Since(lastMutation) < cfg.MinInterval {
		return Decision{SkipReason: "minimum interval since last mutation not elapsed"}
	}

	d := Decision{}
	skillsEligible := cfg.Mode == ModeAll || cfg.Mode == ModeSkillsOnly
	memoryEligible := cfg.Mode == ModeAll || cfg.Mode == ModeMemoryOnly
	promptsEligible := cfg.Mode == ModeAll || cfg.Mode == ModePromptsOnly

	if skillsEligible && (counts.Failures >= 1 || hasRepeatedPattern) {
		d.SkillsAllowed = true
	}
	if memoryEligible && counts.Meaningful >= cfg.MinMeaningfulForMemory {
		d.MemoryAllowed = true
	}
	if promptsEligible && counts.Meaningful >= cfg.MinMeaningfulForPrompt &&
		(counts.Failures+counts.Replans) >= cfg.MinFailuresForPrompt {
		d.PromptsAllowed = true
	}

	if !d.SkillsAllowed && !d.MemoryAllowed && !d.PromptsAllowed {
		d.SkipReason = "sample size gates not met for any enabled dimension"
	}
	return d
}

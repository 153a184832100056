package evolution

// Patterns is the extracted-rule input an evolution run feeds to the
// proposer, generalizing pkg/dream/analyzer.go's CodebaseAnalysis shape
// (a static struct of findings, separate from the Generator that turns
// them into artifacts) from codebase gaps to decision-log patterns.
type Patterns struct {
	Counts       DecisionCounts
	Repeated     []RepeatedTaskPattern
	ProcessedIDs []int64
}

// Analyzer extracts Patterns from a Store's unprocessed decisions.
type Analyzer struct {
	store *Store
}

// NewAnalyzer builds an Analyzer over an already-open Store. Callers must
// close the Store before handing Patterns off to an LLM-calling
// proposer step, per spec.md §5's connection-lifecycle discipline.
func NewAnalyzer(store *Store) *Analyzer {
	return &Analyzer{store: store}
}

// Analyze gathers the counts and repeated-task patterns the triggering
// policy and skill-generation decision both need.
func (a *Analyzer) Analyze() (Patterns, error) {
	counts, err := a.store.CountUnprocessed()
	if err != nil {
		return Patterns{}, err
	}
	repeated, err := a.store.RepeatedPatterns(3)
	if err != nil {
		return Patterns{}, err
	}
	return Patterns{Counts: counts, Repeated: repeated}, nil
}

// RepeatedPatternAction is the skill-generation-vs-refinement call spec.md
// §4.E.2 makes for a repeated task pattern: generate a new skill when the
// pattern already succeeds often, refine an existing one otherwise.
type RepeatedPatternAction string

const (
	ActionGenerate RepeatedPatternAction = "generate"
	ActionRefine   RepeatedPatternAction = "refine"
)

// DecideAction applies spec.md §4.E.2's "same task_description >= 3 times
// with >= 80% success -> generate; else refine" rule.
func DecideAction(p RepeatedTaskPattern) RepeatedPatternAction {
	if p.Count >= 3 && p.SuccessRate >= 0.8 {
		return ActionGenerate
	}
	return ActionRefine
}

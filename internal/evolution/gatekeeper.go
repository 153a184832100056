package evolution

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/skilllite/skilllite/internal/security"
)

// MutationKind names what's being written, for the path-whitelist and
// size-cap checks.
type MutationKind string

const (
	MutationRule    MutationKind = "rule"
	MutationExample MutationKind = "example"
	MutationSkill   MutationKind = "skill"
	MutationPrompt  MutationKind = "prompt"
	MutationSource  MutationKind = "source"
)

// Mutation is one candidate write the gatekeeper evaluates, per spec.md
// §4.E.3's five layers.
type Mutation struct {
	Kind MutationKind
	// RelPath is the path a write would land at, relative to the chat
	// root — must fall under prompts/, memory/, or skills/_evolved/.
	RelPath string
	// Content is the new file content (markdown template or JSON data).
	Content string
	// IsTemplate marks markdown templates subject to L1b placeholder
	// preservation; JSON data files skip that check.
	IsTemplate bool
	// PriorContent is the template's previous content, for L1b's
	// placeholder-preservation diff. Empty for new files.
	PriorContent string
	// IsScript marks a mutation needing L4's scanner pass (generated
	// skill scripts).
	IsScript bool
	// Language is the script's language hint, for the L4 scanner.
	Language string
}

// Batch size caps, spec.md §4.E.3 L2.
const (
	MaxNewRulesPerTxn    = 5
	MaxNewExamplesPerTxn = 3
	MaxNewSkillsPerTxn   = 1
)

// RejectReason explains why the gatekeeper rejected a mutation — logged,
// never surfaced as a hard failure to the caller (spec.md §7: "Rule/change
// discarded silently (logged); transaction continues with remaining
// candidates").
type RejectReason string

const (
	RejectPathWhitelist   RejectReason = "path outside prompts/, memory/, or skills/_evolved/"
	RejectTemplateBroken  RejectReason = "template lost a required placeholder"
	RejectSizeCapExceeded RejectReason = "per-transaction size cap exceeded"
	RejectContentScan     RejectReason = "sensitive content pattern matched"
	RejectScriptScan      RejectReason = "generated script failed the security scanner"
)

// GateResult is the outcome of running one Mutation through every
// applicable layer.
type GateResult struct {
	Mutation Mutation
	Accepted bool
	Reason   RejectReason
	Scan     *security.ScanResult // populated when L4 ran
}

// allowedPrefixes is L1's path whitelist.
var allowedPrefixes = []string{"prompts/", "memory/", "skills/_evolved/"}

func isWhitelistedPath(relPath string) bool {
	clean := filepath.ToSlash(filepath.Clean(relPath))
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(clean, prefix) {
			return true
		}
	}
	return false
}

// requiredPlaceholderRe extracts {{placeholder}} tokens from a template.
var requiredPlaceholderRe = regexp.MustCompile(`\{\{[a-zA-Z0-9_.]+\}\}`)

func placeholdersOf(content string) map[string]bool {
	set := make(map[string]bool)
	for _, m := range requiredPlaceholderRe.FindAllString(content, -1) {
		set[m] = true
	}
	return set
}

// templatePreservesPlaceholders implements L1b: every placeholder token
// present in the prior version must still be present in the new one.
func templatePreservesPlaceholders(prior, next string) bool {
	if prior == "" {
		return true // new template, nothing to preserve yet
	}
	for ph := range placeholdersOf(prior) {
		if !strings.Contains(next, ph) {
			return false
		}
	}
	return true
}

// sensitivePatterns is L3's content scan: credential tokens, scan-bypass
// instructions, interpreter-eval constructs — a narrower, evolution-
// specific list than internal/security's full skill-code scanner, since
// L3 runs over proposed rule/example/prompt TEXT, not executable code.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)api[_-]?key\s*[:=]`),
	regexp.MustCompile(`(?i)(skip|bypass|disable)\s+(the\s+)?(scan|sandbox|security|safeguard)`),
	regexp.MustCompile(`(?i)\beval\s*\(`),
	regexp.MustCompile(`(?i)\bexec\s*\(`),
	regexp.MustCompile(`(?i)-----BEGIN (RSA|OPENSSH|PGP) PRIVATE KEY-----`),
}

func containsSensitiveContent(content string) bool {
	for _, re := range sensitivePatterns {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// Gatekeeper evaluates candidate mutations against every applicable
// layer of spec.md §4.E.3, batched per transaction for the L2 size cap.
type Gatekeeper struct {
	rulesThisTxn    int
	examplesThisTxn int
	skillsThisTxn   int
}

// NewGatekeeper starts a fresh per-transaction counter set.
func NewGatekeeper() *Gatekeeper {
	return &Gatekeeper{}
}

// Evaluate runs m through L1, L1b, L2, L3, and (for scripts) L4, in
// order, short-circuiting on the first failing layer.
func (g *Gatekeeper) Evaluate(m Mutation) GateResult {
	if !isWhitelistedPath(m.RelPath) {
		return GateResult{Mutation: m, Reason: RejectPathWhitelist}
	}

	if m.IsTemplate && !templatePreservesPlaceholders(m.PriorContent, m.Content) {
		return GateResult{Mutation: m, Reason: RejectTemplateBroken}
	}

	if !g.withinSizeCaps(m) {
		return GateResult{Mutation: m, Reason: RejectSizeCapExceeded}
	}

	if containsSensitiveContent(m.Content) {
		return GateResult{Mutation: m, Reason: RejectContentScan}
	}

	result := GateResult{Mutation: m, Accepted: true}
	if m.IsScript {
		scan := security.ScanContent(m.Content, nil)
		result.Scan = &scan
		// A generated script has no user to confirm it, so a High finding
		// fails L4 just as a Critical one does.
		if !scan.IsSafe || scan.RequiresConfirmation() {
			result.Accepted = false
			result.Reason = RejectScriptScan
			return result
		}
	}

	g.commit(m)
	return result
}

func (g *Gatekeeper) withinSizeCaps(m Mutation) bool {
	switch m.Kind {
	case MutationRule:
		return g.rulesThisTxn < MaxNewRulesPerTxn
	case MutationExample:
		return g.examplesThisTxn < MaxNewExamplesPerTxn
	case MutationSkill:
		return g.skillsThisTxn < MaxNewSkillsPerTxn
	default:
		return true
	}
}

func (g *Gatekeeper) commit(m Mutation) {
	switch m.Kind {
	case MutationRule:
		g.rulesThisTxn++
	case MutationExample:
		g.examplesThisTxn++
	case MutationSkill:
		g.skillsThisTxn++
	}
}

// RefineUntilSafe retries a script mutation against L4 up to maxRounds
// times, calling fix to produce a revised script after each failure —
// spec.md §4.E.3 L4's "enter a refinement loop (up to 2 rounds)".
func RefineUntilSafe(g *Gatekeeper, m Mutation, maxRounds int, fix func(scan security.ScanResult) (string, error)) (GateResult, error) {
	result := g.Evaluate(m)
	for round := 0; round < maxRounds && !result.Accepted && result.Reason == RejectScriptScan; round++ {
		fixed, err := fix(*result.Scan)
		if err != nil {
			return result, fmt.Errorf("refinement round %d: %w", round+1, err)
		}
		m.Content = fixed
		result = g.Evaluate(m)
	}
	return result, nil
}

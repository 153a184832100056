package evolution

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/skilllite/skilllite/internal/skill"
	"github.com/skilllite/skilllite/internal/tracing"
)

// Config bundles everything one run_evolution invocation needs: file
// locations, the triggering policy, and the LLM transport for the
// proposer steps.
type Config struct {
	ChatRoot  string // e.g. ~/.skilllite/chat
	DBPath    string // ChatRoot/memory/default.sqlite
	Trigger   TriggerConfig
	Model     string
	Transport completer
	Gauges    *Gauges
}

func (c Config) promptsDir() string { return filepath.Join(c.ChatRoot, "prompts") }
func (c Config) skillsEvolvedDir() string {
	return filepath.Join(c.ChatRoot, "skills", "_evolved")
}

// entropySource mints ulid entropy; package-level so every txn_id in one
// process shares a monotonic counter, guaranteeing the strictly
// increasing ordering spec.md §5 requires.
var entropySource = ulid.Monotonic(rand.Reader, 0)

// RunEvolution is the single public coroutine spec.md §4.E names:
// run_evolution(chat_root, llm_config) -> option<txn_id>. Returns a nil
// txn_id (not an error) whenever the triggering policy, daily cap, or
// evolution mutex causes the run to no-op — per spec.md §7, caps and a
// second concurrent attempt are silent no-ops, not failures.
func RunEvolution(ctx context.Context, cfg Config) (*string, error) {
	ctx, span := tracing.StartSpan(ctx, "evolution.run")
	defer span.End()

	if !tryAcquire() {
		return nil, nil
	}
	defer release()

	decision, counts, repeated, err := evaluateTrigger(cfg)
	if err != nil {
		return nil, err
	}
	if !decision.SkillsAllowed && !decision.MemoryAllowed && !decision.PromptsAllowed {
		return nil, nil
	}

	txnID := NewTxnID(entropySource)
	snap := &Snapshot{PromptsDir: cfg.promptsDir()}
	gate := NewGatekeeper()
	proposer := NewProposer(cfg.Transport, cfg.Model)

	var processedIDs []int64
	var logEntries []AuditEvent

	if decision.MemoryAllowed || decision.PromptsAllowed {
		if err := runPromptEvolution(ctx, cfg, proposer, gate, snap, txnID, counts, &logEntries); err != nil {
			return nil, err
		}
	}

	if decision.SkillsAllowed {
		if err := runSkillEvolution(ctx, cfg, proposer, gate, repeated, &logEntries); err != nil {
			return nil, err
		}
	}

	var newProducts int
	for _, ev := range logEntries {
		if ev.MutationType != "auto_rollback" {
			newProducts++
		}
	}

	if err := WithStore(cfg.DBPath, func(s *Store) error {
		for _, ev := range logEntries {
			if err := s.RecordMutation(ev.MutationType, ev.TargetID, ev.Reason, txnID); err != nil {
				return err
			}
		}
		ids, err := unprocessedDecisionIDs(s)
		if err != nil {
			return err
		}
		processedIDs = ids
		if err := s.MarkProcessed(processedIDs); err != nil {
			return err
		}

		today, err := s.ComputeTodayMetrics()
		if err != nil {
			return err
		}
		today.EGL = ComputeEGL(newProducts, len(processedIDs))
		if err := s.UpsertMetrics(today); err != nil {
			return err
		}
		if cfg.Gauges != nil {
			cfg.Gauges.Observe(today)
		}

		return s.ExportDecisions(cfg.ChatRoot, 200)
	}); err != nil {
		return nil, fmt.Errorf("persist evolution run: %w", err)
	}

	for _, ev := range logEntries {
		ev.TxnID = txnID
		_ = AppendAuditLog(cfg.ChatRoot, ev)
	}

	if err := snap.Prune(); err != nil {
		return nil, fmt.Errorf("prune old snapshots: %w", err)
	}

	if err := maybeAutoRollback(cfg, snap); err != nil {
		return nil, err
	}

	return &txnID, nil
}

func evaluateTrigger(cfg Config) (Decision, DecisionCounts, []RepeatedTaskPattern, error) {
	var decision Decision
	var counts DecisionCounts
	var repeated []RepeatedTaskPattern

	err := WithStore(cfg.DBPath, func(s *Store) error {
		mutationsToday, err := s.CountMutationsToday()
		if err != nil {
			return err
		}
		lastMutation, err := s.LastMutationTime()
		if err != nil {
			return err
		}
		analyzer := NewAnalyzer(s)
		patterns, err := analyzer.Analyze()
		if err != nil {
			return err
		}
		counts = patterns.Counts
		repeated = patterns.Repeated
		decision = Decide(cfg.Trigger, mutationsToday, lastMutation, counts, len(repeated) > 0)
		return nil
	})
	return decision, counts, repeated, err
}

func unprocessedDecisionIDs(s *Store) ([]int64, error) {
	rows, err := s.db.Query(`SELECT id FROM decisions WHERE processed = 0`)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed decision ids: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// runPromptEvolution implements spec.md §4.E.5's prompt-evolution
// operation: propose rules/examples from the observed decision window,
// gate each through L1-L3, merge accepted ones into rules.json /
// examples.json with the snapshot-before-write discipline.
func runPromptEvolution(ctx context.Context, cfg Config, proposer *Proposer, gate *Gatekeeper, snap *Snapshot, txnID string, counts DecisionCounts, logEntries *[]AuditEvent) error {
	patterns := Patterns{Counts: counts}
	rules, examples, err := proposer.ProposeRules(ctx, patterns)
	if err != nil {
		return fmt.Errorf("propose rules: %w", err)
	}
	if len(rules) == 0 && len(examples) == 0 {
		return nil
	}

	if err := snap.Before(txnID, []string{rulesFile, examplesFile}); err != nil {
		return fmt.Errorf("snapshot prompts before write: %w", err)
	}

	existingRules, err := LoadRules(cfg.promptsDir())
	if err != nil {
		return err
	}
	existingExamples, err := LoadExamples(cfg.promptsDir())
	if err != nil {
		return err
	}

	var acceptedRules []Rule
	for _, r := range rules {
		data, _ := json.Marshal(r)
		result := gate.Evaluate(Mutation{Kind: MutationRule, RelPath: filepath.Join("prompts", rulesFile), Content: string(data)})
		if !result.Accepted {
			*logEntries = append(*logEntries, AuditEvent{MutationType: "rule_added", TargetID: r.ID, Reason: string(result.Reason)})
			continue
		}
		acceptedRules = append(acceptedRules, r)
		*logEntries = append(*logEntries, AuditEvent{MutationType: "rule_added", TargetID: r.ID, Reason: r.Text, Message: FormatMessage("rule_added", r.ID, r.Text)})
	}

	var acceptedExamples []Example
	for _, e := range examples {
		data, _ := json.Marshal(e)
		result := gate.Evaluate(Mutation{Kind: MutationExample, RelPath: filepath.Join("prompts", examplesFile), Content: string(data)})
		if !result.Accepted {
			continue
		}
		acceptedExamples = append(acceptedExamples, e)
		*logEntries = append(*logEntries, AuditEvent{MutationType: "example_added", TargetID: e.ID, Reason: e.Outcome, Message: FormatMessage("example_added", e.ID, e.Outcome)})
	}

	merged, dropped := MergeRules(existingRules, acceptedRules)
	if dropped > 0 {
		*logEntries = append(*logEntries, AuditEvent{MutationType: "rule_retired", TargetID: "(cap)", Reason: fmt.Sprintf("%d candidate rules dropped at the 50-rule cap", dropped)})
	}
	if err := SaveRules(cfg.promptsDir(), merged); err != nil {
		return err
	}
	if err := SaveExamples(cfg.promptsDir(), MergeExamples(existingExamples, acceptedExamples)); err != nil {
		return err
	}

	return snap.AppendChangelog(ChangelogEntry{
		TxnID:   txnID,
		Files:   []string{rulesFile, examplesFile},
		Changes: changeDescriptions(acceptedRules, acceptedExamples),
		Reason:  "prompt evolution from observed decision window",
	})
}

func changeDescriptions(rules []Rule, examples []Example) []string {
	var out []string
	for _, r := range rules {
		out = append(out, "rule: "+r.ID)
	}
	for _, e := range examples {
		out = append(out, "example: "+e.ID)
	}
	return out
}

// runSkillEvolution implements spec.md §4.E.5's skill generation and
// refinement operations, driven by DecideAction's
// repeated-pattern-success heuristic.
func runSkillEvolution(ctx context.Context, cfg Config, proposer *Proposer, gate *Gatekeeper, repeated []RepeatedTaskPattern, logEntries *[]AuditEvent) error {
	for _, pattern := range repeated {
		action := DecideAction(pattern)
		var proposal *SkillProposal
		var err error
		if action == ActionGenerate {
			proposal, err = proposer.ProposeSkill(ctx, pattern)
		} else {
			proposal, err = proposer.RefineSkill(ctx, pattern.TaskDescription, nil)
		}
		if err != nil {
			return fmt.Errorf("%s skill for pattern %q: %w", action, pattern.TaskDescription, err)
		}
		if proposal == nil {
			continue
		}
		if err := acceptSkillProposal(cfg, gate, *proposal, logEntries); err != nil {
			return err
		}
	}
	return nil
}

// acceptSkillProposal gates a generated/refined skill through L1-L4 and,
// if accepted, materializes it under skills/_evolved/_pending/<name>/
// per spec.md §4.E.5 — promotion into skills/_evolved/<name>/ requires
// an explicit user command, out of this coroutine's scope. Scripts longer
// than 150 lines are rejected before the gatekeeper runs.
func acceptSkillProposal(cfg Config, gate *Gatekeeper, proposal SkillProposal, logEntries *[]AuditEvent) error {
	const maxScriptLines = 150
	if lines := strings.Count(strings.TrimRight(proposal.ScriptContent, "\n"), "\n") + 1; lines > maxScriptLines {
		*logEntries = append(*logEntries, AuditEvent{MutationType: "skill_generated", TargetID: proposal.Name, Reason: string(RejectSizeCapExceeded)})
		return nil
	}

	name := skill.Sanitize(proposal.Name)
	relPath := filepath.Join("skills", "_evolved", "_pending", name, entryFileName(proposal.EntryPoint))

	result := gate.Evaluate(Mutation{
		Kind:     MutationSkill,
		RelPath:  relPath,
		Content:  proposal.ScriptContent,
		IsScript: true,
	})
	if !result.Accepted {
		*logEntries = append(*logEntries, AuditEvent{MutationType: "skill_generated", TargetID: proposal.Name, Reason: string(result.Reason)})
		return nil
	}

	pendingDir := filepath.Join(cfg.skillsEvolvedDir(), "_pending", name)
	if err := materializeSkill(pendingDir, proposal); err != nil {
		return fmt.Errorf("materialize skill %q: %w", proposal.Name, err)
	}
	*logEntries = append(*logEntries, AuditEvent{
		MutationType: "skill_generated",
		TargetID:     proposal.Name,
		Reason:       proposal.Description,
		Message:      FormatMessage("skill_generated", proposal.Name, proposal.Description),
	})
	return nil
}

func entryFileName(entryPoint string) string {
	if entryPoint == "" {
		return "run.py"
	}
	return entryPoint
}

// materializeSkill writes a generated skill's SKILL.md and entry script
// to dir, which always starts under skills/_evolved/_pending/ — moving it
// into skills/_evolved/<name>/ proper is done by hand; the CLI has no
// command for it.
func materializeSkill(dir string, proposal SkillProposal) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(proposal.SkillMDContent), 0o644); err != nil {
		return fmt.Errorf("write SKILL.md: %w", err)
	}
	entry := entryFileName(proposal.EntryPoint)
	if err := os.WriteFile(filepath.Join(dir, entry), []byte(proposal.ScriptContent), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", entry, err)
	}
	return nil
}

func maybeAutoRollback(cfg Config, snap *Snapshot) error {
	var recent []MetricsRow
	var lastTxn string
	err := WithStore(cfg.DBPath, func(s *Store) error {
		m, err := s.RecentMetrics(rollbackWindow + 1)
		if err != nil {
			return err
		}
		recent = m
		row := s.db.QueryRow(`SELECT version FROM evolution_log WHERE mutation_type NOT LIKE '%_rolled_back' ORDER BY id DESC LIMIT 1`)
		_ = row.Scan(&lastTxn) // no rows is fine: nothing to roll back yet
		return nil
	})
	if err != nil {
		return err
	}
	if lastTxn == "" || !ShouldAutoRollback(recent) {
		return nil
	}

	if err := snap.Restore(lastTxn); err != nil {
		return fmt.Errorf("auto-rollback restore %s: %w", lastTxn, err)
	}
	return WithStore(cfg.DBPath, func(s *Store) error {
		if err := s.RetypeRolledBack(lastTxn); err != nil {
			return err
		}
		if err := s.RecordMutation("auto_rollback", lastTxn, "metrics declined for 3 consecutive days", lastTxn); err != nil {
			return err
		}
		return nil
	})
}

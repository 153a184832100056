package evolution

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// AuditEvent is one line appended to evolution.log, the JSONL audit
// trail spec.md §6 names alongside the SQL evolution_log table — the
// SQL table is queryable bookkeeping, evolution.log is the
// human-inspectable append-only trail of the same events.
type AuditEvent struct {
	Timestamp    time.Time    `json:"timestamp"`
	MutationType string       `json:"mutation_type"`
	TargetID     string       `json:"target_id"`
	Reason       string       `json:"reason"`
	TxnID        string       `json:"txn_id"`
	Message      string       `json:"message"`
}

// AppendAuditLog appends one AuditEvent to <chatRoot>/evolution.log.
func AppendAuditLog(chatRoot string, ev AuditEvent) error {
	f, err := os.OpenFile(filepath.Join(chatRoot, "evolution.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open evolution.log: %w", err)
	}
	defer f.Close()
	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

// messageTemplates is the change-type -> human-readable-message registry
// spec.md §7 names ("Evolution activity emits human-readable messages
// via the registry of change-type -> formatted message after each run").
var messageTemplates = map[string]string{
	"rule_added":              "Learned a new planning rule (%s): %s",
	"rule_updated":            "Refined planning rule %s: %s",
	"rule_retired":            "Retired planning rule %s: %s",
	"example_added":           "Learned a new example (%s): %s",
	"skill_generated":         "Generated a new skill %q: %s",
	"skill_refined":           "Refined skill %q: %s",
	"skill_retired":           "Retired skill %q: %s",
	"external_rule_added":     "Learned a rule from an external source (%s): %s",
	"source_paused":           "Paused external source %s: %s",
	"auto_rollback":           "Rolled back transaction %s automatically: %s",
}

// FormatMessage renders a mutation type and its target/reason through
// messageTemplates, falling back to a generic sentence for unrecognized
// types rather than panicking on a format-verb mismatch.
func FormatMessage(mutationType, targetID, reason string) string {
	tmpl, ok := messageTemplates[mutationType]
	if !ok {
		return fmt.Sprintf("%s: %s (%s)", mutationType, targetID, reason)
	}
	return fmt.Sprintf(tmpl, targetID, reason)
}

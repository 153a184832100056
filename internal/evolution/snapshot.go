package evolution

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// maxRetainedVersions caps prompts/_versions/ at the ten most recent
// txn_ids, per spec.md §4.E.4.
const maxRetainedVersions = 10

// NewTxnID mints a timestamp-derived, monotonically sortable
// transaction id using github.com/oklog/ulid/v2 — the teacher's go.mod
// carries it for pkg/orchestrator/identifiers.go's session/task ids;
// reused here verbatim for the same "sortable, collision-resistant id"
// purpose spec.md's ordering guarantees require of txn_id.
func NewTxnID(entropy ulid.MonotonicReader) string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return "evo_" + strings.ToLower(id.String())
}

// Snapshot handles the prompts/_versions/{txn_id}/ snapshot-before-write
// and restore-on-rollback dance, per spec.md §4.E.4. Grounded on the
// *shape* (not content) of original_source's
// crates/skilllite-evolution/src/skill_synth.rs versioned-directory
// approach.
type Snapshot struct {
	PromptsDir string // <chat_root>/prompts
}

func (s *Snapshot) versionsDir() string {
	return filepath.Join(s.PromptsDir, "_versions")
}

func (s *Snapshot) txnDir(txnID string) string {
	return filepath.Join(s.versionsDir(), txnID)
}

// ChangelogEntry is one line of prompts/_versions/changelog.jsonl.
type ChangelogEntry struct {
	TxnID     string    `json:"txn_id"`
	Timestamp time.Time `json:"timestamp"`
	Files     []string  `json:"files"`
	Changes   []string  `json:"changes"`
	Reason    string    `json:"reason"`
}

// Before copies the current contents of every file in files (paths
// relative to PromptsDir) into prompts/_versions/{txnID}/ before any of
// them is overwritten. Missing files (new artifacts with nothing to
// snapshot yet) are skipped, not an error.
func (s *Snapshot) Before(txnID string, files []string) error {
	dir := s.txnDir(txnID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	for _, rel := range files {
		src := filepath.Join(s.PromptsDir, rel)
		data, err := os.ReadFile(src)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("read %s for snapshot: %w", rel, err)
		}
		dst := filepath.Join(dir, filepath.Base(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return fmt.Errorf("write snapshot copy of %s: %w", rel, err)
		}
	}
	return nil
}

// AppendChangelog records one changelog.jsonl line for txnID.
func (s *Snapshot) AppendChangelog(entry ChangelogEntry) error {
	if err := os.MkdirAll(s.versionsDir(), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(s.versionsDir(), "changelog.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open changelog: %w", err)
	}
	defer f.Close()
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

// Restore copies every file found in prompts/_versions/{txnID}/ back
// onto its original path under PromptsDir — the basis for both manual
// and automatic rollback.
func (s *Snapshot) Restore(txnID string) error {
	dir := s.txnDir(txnID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read snapshot %s: %w", txnID, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("read snapshot file %s: %w", e.Name(), err)
		}
		if err := os.WriteFile(filepath.Join(s.PromptsDir, e.Name()), data, 0o644); err != nil {
			return fmt.Errorf("restore %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Prune deletes all but the maxRetainedVersions most recent txn
// directories under prompts/_versions/ — ulid's lexicographic sort
// order is also chronological, so a plain name sort gives the right
// recency order without parsing timestamps.
func (s *Snapshot) Prune() error {
	entries, err := os.ReadDir(s.versionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	if len(dirs) <= maxRetainedVersions {
		return nil
	}
	for _, old := range dirs[:len(dirs)-maxRetainedVersions] {
		if err := os.RemoveAll(filepath.Join(s.versionsDir(), old)); err != nil {
			return fmt.Errorf("prune old snapshot %s: %w", old, err)
		}
	}
	return nil
}

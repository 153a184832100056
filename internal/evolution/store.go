// Package evolution implements SkillLite's self-evolution engine: a
// decision log, a triggering policy gated by sample size and mutation
// rate, a five-layer gatekeeper over every mutation, and snapshot/
// rollback of the prompt/memory/skill artifacts it writes.
package evolution

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// schema creates the four tables spec.md §4.E.1 names, idempotently.
// Grounded on pkg/storage/sqlite.go's embedded-schema + WAL-mode
// connection lifecycle, generalized to the evolution engine's own
// narrower table set.
const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_key TEXT NOT NULL DEFAULT '',
	chat_root TEXT NOT NULL,
	task_description TEXT NOT NULL,
	tool_call_count INTEGER NOT NULL DEFAULT 0,
	success INTEGER NOT NULL,
	replanned INTEGER NOT NULL DEFAULT 0,
	elapsed_ms INTEGER NOT NULL DEFAULT 0,
	tools_detail TEXT NOT NULL DEFAULT '[]',
	user_feedback TEXT NOT NULL DEFAULT 'neutral' CHECK(user_feedback IN ('pos','neg','neutral')),
	implicit_correction INTEGER NOT NULL DEFAULT 0,
	processed INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS decision_rules (
	decision_id INTEGER NOT NULL REFERENCES decisions(id),
	rule_id TEXT NOT NULL,
	PRIMARY KEY (decision_id, rule_id)
);

CREATE TABLE IF NOT EXISTS evolution_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	mutation_type TEXT NOT NULL,
	target_id TEXT NOT NULL,
	reason TEXT NOT NULL,
	version TEXT NOT NULL,
	ts TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS evolution_metrics (
	date TEXT PRIMARY KEY,
	first_success_rate REAL NOT NULL,
	avg_replans REAL NOT NULL,
	avg_tool_calls REAL NOT NULL,
	user_correction_rate REAL NOT NULL,
	egl REAL NOT NULL
);
`

// Store wraps the evolution engine's SQLite database. Callers follow the
// open→use→close-before-async→reopen-after discipline spec.md §5
// requires; Store itself only enforces WAL mode and schema creation, the
// same way pkg/storage.New does for the teacher's own database.
type Store struct {
	db *sql.DB
}

// Open creates the database directory if needed, opens a WAL-mode
// connection, and ensures the schema exists.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create evolution db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open evolution db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply evolution schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection. Callers must close the
// Store before any LLM/network call and reopen afterward — it is not
// safe to hold across a suspension point.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithStore opens dbPath, runs fn, and closes the connection before
// returning — the scoped-subfunction shape spec.md §5 requires so a
// *sql.DB handle is never held across an awaited LLM call.
func WithStore(dbPath string, fn func(*Store) error) error {
	s, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// UserFeedback is the tri-state explicit feedback signal attached to a
// decision: pos/neg come from an explicit thumbs-up/down, neutral means
// none was given (distinct from an implicit "neg" inferred by
// ImplicitCorrection).
type UserFeedback string

const (
	FeedbackPositive UserFeedback = "pos"
	FeedbackNegative UserFeedback = "neg"
	FeedbackNeutral  UserFeedback = "neutral"
)

// DecisionRecord is one row of the decisions table — one user turn.
type DecisionRecord struct {
	ID                 int64
	SessionKey         string
	ChatRoot           string
	TaskDescription    string
	ToolCallCount      int
	Success            bool
	Replanned          bool
	ElapsedMS          int64
	ToolsDetail        string // JSON array, e.g. `[{"name":"read_file","success":true}]`
	UserFeedback       UserFeedback
	ImplicitCorrection bool
	Processed          bool
	CreatedAt          time.Time
}

// RecordDecision inserts one decision row and its rule associations.
func (s *Store) RecordDecision(d DecisionRecord, ruleIDs []string) (int64, error) {
	feedback := d.UserFeedback
	if feedback == "" {
		feedback = FeedbackNeutral
	}
	toolsDetail := d.ToolsDetail
	if toolsDetail == "" {
		toolsDetail = "[]"
	}
	res, err := s.db.Exec(
		`INSERT INTO decisions (session_key, chat_root, task_description, tool_call_count, success, replanned, elapsed_ms, tools_detail, user_feedback, implicit_correction, processed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		d.SessionKey, d.ChatRoot, d.TaskDescription, d.ToolCallCount, boolToInt(d.Success), boolToInt(d.Replanned),
		d.ElapsedMS, toolsDetail, string(feedback), boolToInt(d.ImplicitCorrection),
	)
	if err != nil {
		return 0, fmt.Errorf("record decision: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("decision id: %w", err)
	}
	for _, rid := range ruleIDs {
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO decision_rules (decision_id, rule_id) VALUES (?, ?)`, id, rid); err != nil {
			return id, fmt.Errorf("link decision rule %s: %w", rid, err)
		}
	}
	return id, nil
}

// LastTaskDescription returns the most recent task_description recorded
// under sessionKey, for DetectImplicitCorrection to compare the new
// prompt against. ok is false when the session has no prior turn.
func (s *Store) LastTaskDescription(sessionKey string) (description string, ok bool, err error) {
	row := s.db.QueryRow(
		`SELECT task_description FROM decisions WHERE session_key = ? ORDER BY id DESC LIMIT 1`,
		sessionKey,
	)
	if err := row.Scan(&description); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("last task description: %w", err)
	}
	return description, true, nil
}

// MarkProcessed flags decisions as consumed by an evolution run so the
// next sample-size gate doesn't recount them.
func (s *Store) MarkProcessed(ids []int64) error {
	for _, id := range ids {
		if _, err := s.db.Exec(`UPDATE decisions SET processed = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("mark decision %d processed: %w", id, err)
		}
	}
	return nil
}

// DecisionCounts summarizes unprocessed decisions for the triggering
// policy's sample-size gates.
type DecisionCounts struct {
	Meaningful int // unprocessed decisions with tool_call_count >= 2
	Failures   int // unprocessed decisions with success = false
	Replans    int // unprocessed decisions with replanned = true
}

// CountUnprocessed returns the sample-size inputs the triggering policy
// needs, per spec.md §4.E.2.
func (s *Store) CountUnprocessed() (DecisionCounts, error) {
	var c DecisionCounts
	row := s.db.QueryRow(`SELECT COUNT(*) FROM decisions WHERE processed = 0 AND tool_call_count >= 2`)
	if err := row.Scan(&c.Meaningful); err != nil {
		return c, fmt.Errorf("count meaningful decisions: %w", err)
	}
	row = s.db.QueryRow(`SELECT COUNT(*) FROM decisions WHERE processed = 0 AND success = 0`)
	if err := row.Scan(&c.Failures); err != nil {
		return c, fmt.Errorf("count failures: %w", err)
	}
	row = s.db.QueryRow(`SELECT COUNT(*) FROM decisions WHERE processed = 0 AND replanned = 1`)
	if err := row.Scan(&c.Replans); err != nil {
		return c, fmt.Errorf("count replans: %w", err)
	}
	return c, nil
}

// RepeatedTaskPattern is one task_description seen >=3 times among
// unprocessed decisions, with its aggregate success rate — the input to
// the skill-generation-vs-refinement decision of spec.md §4.E.2.
type RepeatedTaskPattern struct {
	TaskDescription string
	Count           int
	SuccessRate     float64
}

// RepeatedPatterns returns task descriptions repeated at least
// minOccurrences times among unprocessed decisions.
func (s *Store) RepeatedPatterns(minOccurrences int) ([]RepeatedTaskPattern, error) {
	rows, err := s.db.Query(
		`SELECT task_description, COUNT(*) AS n, AVG(success) AS rate
		 FROM decisions WHERE processed = 0
		 GROUP BY task_description HAVING COUNT(*) >= ?`,
		minOccurrences,
	)
	if err != nil {
		return nil, fmt.Errorf("query repeated patterns: %w", err)
	}
	defer rows.Close()
	var patterns []RepeatedTaskPattern
	for rows.Next() {
		var p RepeatedTaskPattern
		if err := rows.Scan(&p.TaskDescription, &p.Count, &p.SuccessRate); err != nil {
			return nil, fmt.Errorf("scan repeated pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// RecordMutation appends one evolution_log row.
func (s *Store) RecordMutation(mutationType, targetID, reason, version string) error {
	_, err := s.db.Exec(
		`INSERT INTO evolution_log (mutation_type, target_id, reason, version) VALUES (?, ?, ?, ?)`,
		mutationType, targetID, reason, version,
	)
	if err != nil {
		return fmt.Errorf("record mutation: %w", err)
	}
	return nil
}

// CountMutationsToday implements the daily-cap gate.
func (s *Store) CountMutationsToday() (int, error) {
	var n int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM evolution_log WHERE date(ts) = date('now')`)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count mutations today: %w", err)
	}
	return n, nil
}

// LastMutationTime implements the minimum-interval gate; the zero time
// means no mutation has ever been recorded.
func (s *Store) LastMutationTime() (time.Time, error) {
	var ts sql.NullString
	row := s.db.QueryRow(`SELECT ts FROM evolution_log ORDER BY ts DESC LIMIT 1`)
	if err := row.Scan(&ts); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("last mutation time: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	parsed, err := time.Parse("2006-01-02 15:04:05", ts.String)
	if err != nil {
		return time.Time{}, nil
	}
	return parsed, nil
}

// RetypeRolledBack appends "_rolled_back" to the mutation_type of every
// evolution_log row tagged with version, per spec.md §4.E.4's
// auto-rollback bookkeeping.
func (s *Store) RetypeRolledBack(version string) error {
	_, err := s.db.Exec(
		`UPDATE evolution_log SET mutation_type = mutation_type || '_rolled_back' WHERE version = ?`,
		version,
	)
	if err != nil {
		return fmt.Errorf("retype rolled-back mutations: %w", err)
	}
	return nil
}

// MetricsRow is one evolution_metrics row.
type MetricsRow struct {
	Date               string
	FirstSuccessRate   float64
	AvgReplans         float64
	AvgToolCalls       float64
	UserCorrectionRate float64
	EGL                float64
}

// UpsertMetrics writes today's aggregate metrics, recomputed from the
// decisions table.
func (s *Store) UpsertMetrics(m MetricsRow) error {
	_, err := s.db.Exec(
		`INSERT INTO evolution_metrics (date, first_success_rate, avg_replans, avg_tool_calls, user_correction_rate, egl)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET
		   first_success_rate = excluded.first_success_rate,
		   avg_replans = excluded.avg_replans,
		   avg_tool_calls = excluded.avg_tool_calls,
		   user_correction_rate = excluded.user_correction_rate,
		   egl = excluded.egl`,
		m.Date, m.FirstSuccessRate, m.AvgReplans, m.AvgToolCalls, m.UserCorrectionRate, m.EGL,
	)
	if err != nil {
		return fmt.Errorf("upsert metrics: %w", err)
	}
	return nil
}

// RecentMetrics returns the last n evolution_metrics rows ordered oldest
// to newest, for the auto-rollback trigger's 3-consecutive-day window.
func (s *Store) RecentMetrics(n int) ([]MetricsRow, error) {
	rows, err := s.db.Query(
		`SELECT date, first_success_rate, avg_replans, avg_tool_calls, user_correction_rate, egl
		 FROM evolution_metrics ORDER BY date DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent metrics: %w", err)
	}
	defer rows.Close()
	var out []MetricsRow
	for rows.Next() {
		var m MetricsRow
		if err := rows.Scan(&m.Date, &m.FirstSuccessRate, &m.AvgReplans, &m.AvgToolCalls, &m.UserCorrectionRate, &m.EGL); err != nil {
			return nil, fmt.Errorf("scan metrics row: %w", err)
		}
		out = append(out, m)
	}
	// Reverse to oldest-first for trend evaluation.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// ComputeTodayMetrics aggregates today's decisions into a MetricsRow,
// the input UpsertMetrics and the Prometheus gauges both consume.
func (s *Store) ComputeTodayMetrics() (MetricsRow, error) {
	m := MetricsRow{Date: time.Now().UTC().Format("2006-01-02")}
	row := s.db.QueryRow(
		`SELECT COALESCE(AVG(success), 0), COALESCE(AVG(replanned), 0),
		        COALESCE(AVG(tool_call_count), 0),
		        COALESCE(AVG(CASE WHEN user_feedback = 'neg' OR implicit_correction = 1 THEN 1 ELSE 0 END), 0)
		 FROM decisions WHERE date(created_at) = date('now')`,
	)
	if err := row.Scan(&m.FirstSuccessRate, &m.AvgReplans, &m.AvgToolCalls, &m.UserCorrectionRate); err != nil {
		return m, fmt.Errorf("compute today's metrics: %w", err)
	}
	return m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package evolution

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExportDecisions regenerates <chatRoot>/DECISIONS.md, a human-readable
// rendering of the decisions table, per spec.md §6. Read-only over the
// store; safe to call on any schedule (after each evolution run, or on
// demand from the CLI).
func (s *Store) ExportDecisions(chatRoot string, limit int) error {
	rows, err := s.db.Query(
		`SELECT id, chat_root, task_description, tool_call_count, success, replanned, user_corrected, created_at
		 FROM decisions ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return fmt.Errorf("query decisions for export: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	b.WriteString("# Decisions\n\n")
	b.WriteString("| ID | Task | Tools | Success | Replanned | Corrected | When |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")

	for rows.Next() {
		var id int64
		var chatRootCol, desc, createdAt string
		var toolCalls int
		var success, replanned, corrected int
		if err := rows.Scan(&id, &chatRootCol, &desc, &toolCalls, &success, &replanned, &corrected, &createdAt); err != nil {
			return fmt.Errorf("scan decision row for export: %w", err)
		}
		b.WriteString(fmt.Sprintf("| %d | %s | %d | %s | %s | %s | %s |\n",
			id, escapeMD(desc), toolCalls, boolCheck(success), boolCheck(replanned), boolCheck(corrected), createdAt))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(chatRoot, "DECISIONS.md"), []byte(b.String()), 0o644)
}

func boolCheck(n int) string {
	if n != 0 {
		return "yes"
	}
	return "no"
}

func escapeMD(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

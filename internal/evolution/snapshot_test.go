package evolution

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

func TestNewTxnIDMonotonic(t *testing.T) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	a := NewTxnID(entropy)
	b := NewTxnID(entropy)
	require.NotEqual(t, a, b)
	require.Less(t, a, b)
	require.Contains(t, a, "evo_")
}

func TestSnapshotBeforeAndRestore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.json"), []byte(`[{"id":"r1"}]`), 0o644))

	snap := &Snapshot{PromptsDir: dir}
	require.NoError(t, snap.Before("evo_0001", []string{"rules.json", "examples.json"}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.json"), []byte(`[{"id":"r1"},{"id":"r2"}]`), 0o644))

	require.NoError(t, snap.Restore("evo_0001"))
	data, err := os.ReadFile(filepath.Join(dir, "rules.json"))
	require.NoError(t, err)
	require.Equal(t, `[{"id":"r1"}]`, string(data))
}

func TestSnapshotPrune(t *testing.T) {
	dir := t.TempDir()
	snap := &Snapshot{PromptsDir: dir}
	for i := 0; i < maxRetainedVersions+5; i++ {
		txnID := NewTxnID(ulid.Monotonic(rand.Reader, 0))
		require.NoError(t, snap.Before(txnID, nil))
	}
	require.NoError(t, snap.Prune())

	entries, err := os.ReadDir(snap.versionsDir())
	require.NoError(t, err)
	var dirs int
	for _, e := range entries {
		if e.IsDir() {
			dirs++
		}
	}
	require.Equal(t, maxRetainedVersions, dirs)
}

func TestSnapshotAppendChangelog(t *testing.T) {
	dir := t.TempDir()
	snap := &Snapshot{PromptsDir: dir}
	require.NoError(t, snap.AppendChangelog(ChangelogEntry{TxnID: "evo_0001", Reason: "test"}))

	data, err := os.ReadFile(filepath.Join(snap.versionsDir(), "changelog.jsonl"))
	require.NoError(t, err)
	require.Contains(t, string(data), "evo_0001")
}

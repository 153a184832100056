package sandbox

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skilllite/skilllite/internal/policy"
)

func TestResultFormatForLLMIncludesBothChannels(t *testing.T) {
	r := &Result{Stdout: "done", Stderr: "warning: foo", ExitCode: 0}
	text := r.FormatForLLM()
	require.Contains(t, text, "succeeded (exit 0)")
	require.Contains(t, text, "done")
	require.Contains(t, text, "warning: foo")
}

func TestResultFormatForLLMReportsFailure(t *testing.T) {
	r := &Result{ExitCode: 1, Kill: KillTimeout}
	text := r.FormatForLLM()
	require.Contains(t, text, "failed (exit 1)")
	require.Contains(t, text, "[killed: timeout]")
}

func TestPrecheckRejectsWorkDirInMandatoryDenySet(t *testing.T) {
	pol := policy.Default()
	s := New(pol)
	err := s.precheck("entry.py", Config{WorkDir: pol.MandatoryDenyWrites[0]})
	require.Error(t, err)
}

func TestPrecheckRequiresSkillDir(t *testing.T) {
	s := New(policy.Default())
	err := s.precheck("entry.py", Config{WorkDir: "/tmp/work"})
	require.Error(t, err)
}

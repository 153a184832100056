package evolution

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectImplicitCorrectionOnRepeatedRequest(t *testing.T) {
	require.True(t, DetectImplicitCorrection(
		"delete the old log files in the output directory",
		"please delete the old log files in output",
	))
}

func TestDetectImplicitCorrectionOnUnrelatedRequest(t *testing.T) {
	require.False(t, DetectImplicitCorrection(
		"delete the old log files",
		"summarize the README for me",
	))
}

func TestDetectImplicitCorrectionEmptyInputs(t *testing.T) {
	require.False(t, DetectImplicitCorrection("", "delete the logs"))
	require.False(t, DetectImplicitCorrection("delete the logs", ""))
	require.False(t, DetectImplicitCorrection("", ""))
}

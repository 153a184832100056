package agent

import (
	"github.com/pmezard/go-difflib/difflib"
)

// unifiedDiffPreview renders a unified diff of an edit so search_replace
// shows its change in the tool-result content rather than applying it
// silently, per spec.md's "diff preview" requirement. Uses
// go-difflib the way the teacher's pkg/diff does for the same purpose.
func unifiedDiffPreview(before, after, path string) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: path,
		ToFile:   path,
		Context:  2,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "(diff unavailable)"
	}
	return text
}

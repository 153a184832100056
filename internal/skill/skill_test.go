package skill

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	require.Equal(t, "my_skill", Sanitize("my-skill"))
	require.Equal(t, "my_skill_2", Sanitize("my skill 2"))
	require.Equal(t, "abc123", Sanitize("abc123"))
}

func TestKindExactlyOne(t *testing.T) {
	cases := []struct {
		name string
		s    Skill
		want Kind
	}{
		{"script entry", Skill{Metadata: Metadata{EntryPoint: "run.py"}}, KindScriptEntry},
		{"multi script", Skill{Metadata: Metadata{Scripts: []string{"a.py", "b.py"}}}, KindMultiScript},
		{"bash tool", Skill{Metadata: Metadata{AllowedBashPatterns: []string{"git *"}}}, KindBashTool},
		{"prompt only", Skill{}, KindPromptOnly},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, c.s.Kind())
		})
	}
}

func TestValidate(t *testing.T) {
	s := &Skill{Metadata: Metadata{Name: "ok_skill", Description: "does a thing"}}
	require.NoError(t, s.Validate())

	missingName := &Skill{Metadata: Metadata{Description: "x"}}
	require.Error(t, missingName.Validate())

	missingDesc := &Skill{Metadata: Metadata{Name: "x"}}
	require.Error(t, missingDesc.Validate())
}

func TestParseSkillMD(t *testing.T) {
	content := `---
name: pdf_extract
description: Extracts text from a PDF
entry_point: extract.py
language: python
network:
  enabled: true
  outbound: ["*.example.com"]
---

# pdf_extract

Extracts text content from PDF files.
`
	s, err := ParseSkillMD(content)
	require.NoError(t, err)
	require.Equal(t, "pdf_extract", s.Name)
	require.Equal(t, "extract.py", s.EntryPoint)
	require.True(t, s.Network.Enabled)
	require.Equal(t, []string{"*.example.com"}, s.Network.Outbound)
	require.Contains(t, s.Content, "Extracts text content")
	require.Equal(t, KindScriptEntry, s.Kind())
}

func TestParseSkillMDMissingFrontmatter(t *testing.T) {
	_, err := ParseSkillMD("# no frontmatter here")
	require.Error(t, err)
}

func TestPipFreezeRoundTrip(t *testing.T) {
	content := "requests==2.31.0\nnumpy==1.26.0\n"
	packages := ParsePipFreeze(content)
	require.Equal(t, []string{"requests==2.31.0", "numpy==1.26.0"}, packages)
	require.Equal(t, "requests==2.31.0\nnumpy==1.26.0", FormatPipFreeze(packages))
}

func TestCompatibilityHashStableUnderLineOrder(t *testing.T) {
	a := CompatibilityHash("requests==2.31.0\nnumpy==1.26.0\n")
	b := CompatibilityHash("numpy==1.26.0\nrequests==2.31.0")
	require.Equal(t, a, b)
}

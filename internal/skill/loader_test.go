package skill

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeSkillDir(t *testing.T, root, name, md string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(md), 0o644))
	return dir
}

func TestLoaderLoadDir(t *testing.T) {
	root := t.TempDir()
	writeSkillDir(t, root, "extractor", `---
name: extractor
description: extracts things
entry_point: run.py
---
body`)
	writeSkillDir(t, root, "broken", `not frontmatter at all`)

	l := NewLoader()
	skills, errs := l.LoadDir(root)
	require.Len(t, errs, 1)
	require.Len(t, skills, 1)
	require.Contains(t, skills, "extractor")
}

func TestLoaderLoadDirMissingRoot(t *testing.T) {
	l := NewLoader()
	skills, errs := l.LoadDir(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Empty(t, errs)
	require.Empty(t, skills)
}

func TestLoaderDiscoversScriptsDir(t *testing.T) {
	root := t.TempDir()
	dir := writeSkillDir(t, root, "multi", `---
name: multi
description: multi-script skill
---
body`)
	scriptsDir := filepath.Join(dir, "scripts")
	require.NoError(t, os.MkdirAll(scriptsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scriptsDir, "a.py"), []byte("pass"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(scriptsDir, "b.py"), []byte("pass"), 0o644))

	l := NewLoader()
	s, err := l.LoadOne(dir)
	require.NoError(t, err)
	require.Len(t, s.Scripts, 2)
	require.Equal(t, KindMultiScript, s.Kind())
}

func TestParseSkillMDExtractsFirstParagraphAsSummary(t *testing.T) {
	s, err := ParseSkillMD(`---
name: extractor
description: extracts things
entry_point: run.py
---

This skill pulls structured fields out of unstructured text.

## Usage

Run it against any document.`)
	require.NoError(t, err)
	require.Equal(t, "This skill pulls structured fields out of unstructured text.", s.Summary)
}

func TestParseSkillMDSummaryIndependentOfDescription(t *testing.T) {
	s, err := ParseSkillMD(`---
name: extractor
description: short frontmatter blurb
entry_point: run.py
---

A longer explanation lives here instead.`)
	require.NoError(t, err)
	require.Equal(t, "short frontmatter blurb", s.Description)
	require.Equal(t, "A longer explanation lives here instead.", s.Summary)
}

func TestRegistryPutGetRemove(t *testing.T) {
	root := t.TempDir()
	writeSkillDir(t, root, "extractor", `---
name: extractor
description: extracts things
entry_point: run.py
---
body`)
	reg, errs := NewRegistry(root, nil)
	require.Empty(t, errs)

	s, ok := reg.Get("extractor")
	require.True(t, ok)
	require.Equal(t, "extractor", s.Name)

	reg.Remove("extractor")
	_, ok = reg.Get("extractor")
	require.False(t, ok)

	reg.Put(s)
	_, ok = reg.Get("extractor")
	require.True(t, ok)

	require.Len(t, reg.List(), 1)
}

package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skilllite/skilllite/internal/policy"
	"github.com/skilllite/skilllite/internal/sandbox"
	"github.com/skilllite/skilllite/internal/skill"
)

func writeTestSkill(t *testing.T, root, name, skillMD, entryScript string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(skillMD), 0o644))
	if entryScript != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "run.py"), []byte(entryScript), 0o755))
	}
	return dir
}

func TestSkillToolSchemaPromptOnly(t *testing.T) {
	root := t.TempDir()
	writeTestSkill(t, root, "greet", "---\nname: greet\ndescription: says hello\n---\nJust greet the user warmly.\n", "")

	reg, errs := skill.NewRegistry(root, nil)
	require.Empty(t, errs)

	s, ok := reg.Get("greet")
	require.True(t, ok)

	tool := &SkillTool{Skill: s, Policy: policy.Default(), Sandbox: sandbox.New(policy.Default())}
	require.Equal(t, skill.KindPromptOnly, s.Kind())
	require.JSONEq(t, `{"type":"object","properties":{}}`, string(tool.Schema()))
}

func TestSkillToolSchemaArgparseExtraction(t *testing.T) {
	root := t.TempDir()
	script := `import argparse
p = argparse.ArgumentParser()
p.add_argument("--input-file")
p.add_argument("--max-rows")
args = p.parse_args()
`
	writeTestSkill(t, root, "csvtool", "---\nname: csvtool\ndescription: processes a csv file\nentry_point: run.py\nlanguage: python\n---\n", script)

	reg, errs := skill.NewRegistry(root, nil)
	require.Empty(t, errs)
	s, ok := reg.Get("csvtool")
	require.True(t, ok)
	require.Equal(t, skill.KindScriptEntry, s.Kind())

	tool := &SkillTool{Skill: s, Policy: policy.Default(), Sandbox: sandbox.New(policy.Default())}
	var schema map[string]any
	require.NoError(t, json.Unmarshal(tool.Schema(), &schema))
	props := schema["properties"].(map[string]any)
	require.Contains(t, props, "input_file")
	require.Contains(t, props, "max_rows")
}

func TestSkillToolPromptOnlyExecuteReturnsContent(t *testing.T) {
	root := t.TempDir()
	writeTestSkill(t, root, "greet", "---\nname: greet\ndescription: says hello\n---\nAlways greet the user by name.\n", "")
	reg, errs := skill.NewRegistry(root, nil)
	require.Empty(t, errs)
	s, _ := reg.Get("greet")

	tool := &SkillTool{Skill: s, Policy: policy.Default(), Sandbox: sandbox.New(policy.Default())}
	result, err := tool.Execute(&ExecutionContext{Context: context.Background()})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Contains(t, result.Output, "greet the user by name")
}

func TestRegisterSkillsBuildsDocProvider(t *testing.T) {
	root := t.TempDir()
	writeTestSkill(t, root, "greet", "---\nname: greet\ndescription: says hello\n---\nGreet warmly.\n", "")
	reg, errs := skill.NewRegistry(root, nil)
	require.Empty(t, errs)

	registry := NewRegistry(nil)
	docProvider := RegisterSkills(registry, reg, sandbox.New(policy.Default()), policy.Default())

	_, ok := registry.Get("greet")
	require.True(t, ok)

	doc, isSkill := docProvider("greet")
	require.True(t, isSkill)
	require.Contains(t, doc, "Greet warmly")

	_, isSkill = docProvider("not_a_skill")
	require.False(t, isSkill)
}

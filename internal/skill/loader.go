package skill

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// Loader discovers skills under a root directory, one subdirectory per
// skill (name taken from frontmatter, not the directory name — the
// directory is free-form). Grounded on pkg/skill.Loader's
// loadFromDirectory/parseSkillFile shape.
type Loader struct{}

// NewLoader builds a Loader.
func NewLoader() *Loader { return &Loader{} }

// LoadDir discovers every SKILL.md-bearing subdirectory of root and
// parses it into a Skill, skipping (not failing on) individual skills
// that fail to parse or validate — a single malformed skill directory
// must not block the rest of the registry from loading.
func (l *Loader) LoadDir(root string) (map[string]*Skill, []error) {
	skills := make(map[string]*Skill)
	var errs []error

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return skills, nil
		}
		return skills, []error{fmt.Errorf("read skills root %s: %w", root, err)}
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		s, err := l.LoadOne(dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("load skill %s: %w", entry.Name(), err))
			continue
		}
		skills[s.Name] = s
	}
	return skills, errs
}

// LoadOne parses a single skill directory's SKILL.md and attaches
// scripts/ discovery.
func (l *Loader) LoadOne(dir string) (*Skill, error) {
	path := filepath.Join(dir, "SKILL.md")
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseSkillMD(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	s.Dir = dir
	s.LoadedAt = time.Now()

	if len(s.Scripts) == 0 {
		if scriptsDir := filepath.Join(dir, "scripts"); dirExists(scriptsDir) {
			entries, _ := os.ReadDir(scriptsDir)
			for _, e := range entries {
				if !e.IsDir() {
					s.Scripts = append(s.Scripts, filepath.Join("scripts", e.Name()))
				}
			}
		}
	}

	if archived, _ := readArchivedFlag(dir); archived {
		s.Archived = true
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseSkillMD splits SKILL.md's leading "---" delimited YAML
// frontmatter from its markdown body, per spec.md §6's SKILL.md format.
func ParseSkillMD(content string) (*Skill, error) {
	trimmed := strings.TrimLeft(content, "\n\r\t ")
	if !strings.HasPrefix(trimmed, "---") {
		return nil, fmt.Errorf("missing YAML frontmatter delimiter")
	}
	parts := strings.SplitN(trimmed, "---", 3)
	if len(parts) < 3 {
		return nil, fmt.Errorf("missing closing frontmatter delimiter")
	}

	var meta Metadata
	if err := yaml.Unmarshal([]byte(parts[1]), &meta); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}

	body := strings.TrimSpace(parts[2])
	s := &Skill{Metadata: meta, Content: body, Summary: firstParagraph(body)}
	return s, nil
}

var goldmarkParser = goldmark.New().Parser()

// firstParagraph walks source's markdown AST and returns the plain text
// of its first paragraph node, for a preview independent of whatever the
// author wrote in the frontmatter description.
func firstParagraph(source string) string {
	src := []byte(source)
	doc := goldmarkParser.Parse(text.NewReader(src))

	var summary string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || summary != "" {
			return ast.WalkContinue, nil
		}
		if n.Kind() != ast.KindParagraph {
			return ast.WalkContinue, nil
		}
		var buf bytes.Buffer
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(src))
				buf.WriteByte(' ')
			}
		}
		summary = strings.TrimSpace(buf.String())
		return ast.WalkStop, nil
	})
	return summary
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isSkillMDPath(path string) bool {
	return filepath.Base(path) == "SKILL.md"
}

func dirOf(path string) string {
	return filepath.Dir(path)
}

// sidecarMeta mirrors spec.md §6's skills/_evolved/<name>/.meta.json
// sidecar the evolution engine writes for archival/usage tracking.
type sidecarMeta struct {
	Archived      bool      `json:"archived"`
	CallCount     int       `json:"call_count"`
	SuccessCount  int       `json:"success_count"`
	LastCalledAt  time.Time `json:"last_called_at"`
}

func readArchivedFlag(dir string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, ".meta.json"))
	if err != nil {
		return false, nil
	}
	var m sidecarMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return false, err
	}
	return m.Archived, nil
}

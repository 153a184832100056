// Package skill implements SkillLite's on-disk Skill data model: SKILL.md
// frontmatter parsing, directory discovery with an fsnotify hot-reload
// watcher, and the .skilllite.lock resolved-dependency schema. Grounded
// on the teacher's pkg/skill (Skill/Loader/Registry shape), generalized
// from buckley's "workflow guidance document" semantics to spec.md §3's
// executable-capability semantics.
package skill

import (
	"regexp"
	"strings"
	"time"
)

// Kind is the exactly-one-of invariant spec.md §3 names for a Skill:
// {script-entry, multi-script, bash-tool, prompt-only}.
type Kind string

const (
	KindScriptEntry Kind = "script-entry"
	KindMultiScript Kind = "multi-script"
	KindBashTool    Kind = "bash-tool"
	KindPromptOnly  Kind = "prompt-only"
)

// NetworkPolicy is the frontmatter-declared network policy: enabled plus
// an outbound domain allowlist, where "*" means allow-all.
type NetworkPolicy struct {
	Enabled  bool     `yaml:"enabled"`
	Outbound []string `yaml:"outbound,omitempty"`
}

// Metadata is parsed directly from SKILL.md's YAML frontmatter, per
// spec.md §3's Skill Metadata record.
type Metadata struct {
	Name               string        `yaml:"name"`
	Description        string        `yaml:"description"`
	EntryPoint         string        `yaml:"entry_point,omitempty"`
	Language           string        `yaml:"language,omitempty"`
	Network            NetworkPolicy `yaml:"network,omitempty"`
	AllowedBashPatterns []string     `yaml:"allowed_bash_patterns,omitempty"`
	Compatibility      string        `yaml:"compatibility,omitempty"`
	ResolvedPackages   []string      `yaml:"resolved_packages,omitempty"`
	Scripts            []string      `yaml:"scripts,omitempty"`
}

// Skill is the on-disk unit of executable capability spec.md §3 defines:
// a directory containing SKILL.md plus an optional entry point, scripts/
// directory, dependency declarations, and references/ docs.
type Skill struct {
	Metadata

	// Content is the markdown body after the frontmatter delimiter.
	Content string

	// Summary is the plain-text first paragraph of Content, extracted by
	// parsing the markdown body's AST rather than the frontmatter
	// description — a second, independent one-line preview for
	// list_skills output.
	Summary string

	// Dir is the skill's directory on disk.
	Dir string

	// Archived marks a skill retired by the evolution engine (sidecar
	// .meta.json, not the SKILL.md itself) without deleting it.
	Archived bool

	LoadedAt time.Time
}

var identifierRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Sanitize reduces raw to a valid skill identifier: alphanumeric and
// underscore only, per spec.md §3's "must be a valid identifier after
// sanitization" invariant.
func Sanitize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '-' || r == ' ':
			b.WriteRune('_')
		}
	}
	return b.String()
}

// IsValidIdentifier reports whether name is already a valid sanitized
// identifier (no further transformation needed).
func IsValidIdentifier(name string) bool {
	return name != "" && identifierRe.MatchString(name)
}

// Kind classifies the skill per spec.md §3's exactly-one-of invariant.
func (s *Skill) Kind() Kind {
	switch {
	case len(s.Scripts) > 1:
		return KindMultiScript
	case len(s.AllowedBashPatterns) > 0:
		return KindBashTool
	case s.EntryPoint != "":
		return KindScriptEntry
	default:
		return KindPromptOnly
	}
}

// Validate checks the required frontmatter fields and identifier rule.
func (s *Skill) Validate() error {
	if s.Name == "" {
		return ErrInvalidSkill{Field: "name", Reason: "name is required"}
	}
	if !IsValidIdentifier(Sanitize(s.Name)) && !IsValidIdentifier(s.Name) {
		return ErrInvalidSkill{Field: "name", Reason: "name must sanitize to alphanumeric/underscore"}
	}
	if s.Description == "" {
		return ErrInvalidSkill{Field: "description", Reason: "description is required"}
	}
	if len(s.Name) > 64 {
		return ErrInvalidSkill{Field: "name", Reason: "name must be 64 characters or less"}
	}
	if len(s.Description) > 1024 {
		return ErrInvalidSkill{Field: "description", Reason: "description must be 1024 characters or less"}
	}
	return nil
}

// ToolName returns the sanitized, stable tool-calling name the control
// loop registers this skill under.
func (s *Skill) ToolName() string {
	return Sanitize(s.Name)
}

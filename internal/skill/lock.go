package skill

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Lock is the .skilllite.lock JSON schema spec.md §6 defines.
type Lock struct {
	CompatibilityHash string   `json:"compatibility_hash"`
	Language          string   `json:"language"`
	ResolvedPackages  []string `json:"resolved_packages"`
	ResolvedAt        string   `json:"resolved_at"` // RFC3339
	Resolver          string   `json:"resolver"`
}

// ReadLock loads <dir>/.skilllite.lock, if present.
func ReadLock(dir string) (*Lock, error) {
	data, err := os.ReadFile(filepath.Join(dir, ".skilllite.lock"))
	if err != nil {
		return nil, err
	}
	var l Lock
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse .skilllite.lock: %w", err)
	}
	return &l, nil
}

// WriteLock writes a .skilllite.lock with the current timestamp.
func WriteLock(dir string, l Lock) error {
	l.ResolvedAt = nowRFC3339()
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ".skilllite.lock"), data, 0o644)
}

// nowRFC3339 is split out so tests can override it; production uses
// time.Now directly.
var nowRFC3339 = func() string { return time.Now().UTC().Format(time.RFC3339) }

// CompatibilityHash computes the sha256 hex digest over a skill's
// declared dependency manifest content, sorted line-by-line first —
// supplemented from original_source/skilllite/src/agent/skills.rs and
// commands/skill/add.rs, which compute compatibility over the declared
// manifest so a lock file can detect drift when requirements.txt or
// package.json changes without needing to re-resolve packages to notice.
func CompatibilityHash(manifest string) string {
	lines := strings.Split(strings.TrimSpace(manifest), "\n")
	sorted := make([]string, 0, len(lines))
	for _, ln := range lines {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		sorted = append(sorted, ln)
	}
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}

// DependencyManifest reads whichever dependency declaration the skill
// directory has — requirements.txt or package.json — for compatibility
// hashing and supply-chain audit. Returns ("", "", nil) if neither
// exists (a skill may declare no dependencies).
func DependencyManifest(dir string) (content, language string, err error) {
	if data, rerr := os.ReadFile(filepath.Join(dir, "requirements.txt")); rerr == nil {
		return string(data), "python", nil
	}
	if data, rerr := os.ReadFile(filepath.Join(dir, "package.json")); rerr == nil {
		return string(data), "node", nil
	}
	return "", "", nil
}

// (Skill).CompatibilityHash computes the hash over this skill's own
// declared manifest, per the original_source supplement above.
func (s *Skill) CompatibilityHash() (string, error) {
	manifest, _, err := DependencyManifest(s.Dir)
	if err != nil {
		return "", err
	}
	return CompatibilityHash(manifest), nil
}

// ParsePipFreeze parses pip-freeze formatted lines ("name==version") into
// resolved-package strings, skipping blanks and comments.
func ParsePipFreeze(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// FormatPipFreeze reserializes resolved packages back to pip-freeze
// lines. Round-trips ParsePipFreeze modulo whitespace, per spec.md §8's
// round-trip property.
func FormatPipFreeze(packages []string) string {
	return strings.Join(packages, "\n")
}

// Package policy holds SkillLite's canonical security policy: the
// mandatory deny sets, move-protection rules, process-exec denylist, and
// network policy resolver consumed by both the sandbox runner and the
// agent's built-in tool layer. Centralizing these lists here, rather than
// duplicating them in each consumer, is what lets the sandbox profile
// generator (internal/sandbox) and the agent's defense-in-depth checks
// (internal/agent) stay in lockstep.
package policy

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/idna"
)

// Mode selects how strict the process-exec and read denylists are.
type Mode int

const (
	// ModeStrict is the default: full denylists apply.
	ModeStrict Mode = iota
	// ModeRelaxed permits git and softens some read denies, for
	// browser-automation and tooling-heavy skills (sandbox level 2).
	ModeRelaxed
)

// Policy is the canonical, centralized security policy.
type Policy struct {
	Mode Mode

	// MandatoryDenyWrites are writes blocked unconditionally, regardless
	// of whether the target path is otherwise inside an allowed subtree.
	MandatoryDenyWrites []string

	// MoveProtected paths (and all their ancestor directories) are
	// deny-listed from rename/move operations.
	MoveProtected []string

	// SensitiveReads are paths denied for read access under strict mode.
	SensitiveReads []string

	// DeniedExec is the process-exec denylist.
	DeniedExec []string
}

// Default builds the canonical policy rooted at the current user's home
// directory, mirroring the teacher's DefaultConfig deny-path assembly.
func Default() *Policy {
	home, _ := os.UserHomeDir()

	return &Policy{
		Mode: ModeStrict,
		MandatoryDenyWrites: []string{
			filepath.Join(home, ".bashrc"),
			filepath.Join(home, ".zshrc"),
			filepath.Join(home, ".bash_profile"),
			filepath.Join(home, ".profile"),
			".git/hooks",
			filepath.Join(home, ".ssh"),
			filepath.Join(home, ".gnupg"),
			filepath.Join(home, ".aws"),
			filepath.Join(home, ".config", "gh"),
			filepath.Join(home, ".skilllite", "config.yaml"),
			filepath.Join(home, ".netrc"),
			filepath.Join(home, ".npmrc"),
			filepath.Join(home, ".pypirc"),
		},
		MoveProtected: []string{
			filepath.Join(home, ".ssh"),
			filepath.Join(home, ".gnupg"),
			filepath.Join(home, ".aws"),
			filepath.Join(home, ".config"),
		},
		SensitiveReads: []string{
			"/etc",
			filepath.Join(home, ".ssh"),
			filepath.Join(home, ".aws"),
			filepath.Join(home, ".bash_history"),
			filepath.Join(home, ".zsh_history"),
			filepath.Join(home, "Library", "Keychains"),
			filepath.Join(home, ".gnupg"),
		},
		DeniedExec: []string{
			"/bin/sh",
			"/bin/bash",
			"curl",
			"wget",
			"ssh",
			"rm",
			"chmod",
			"osascript",
		},
	}
}

// Relaxed returns a copy of p in relaxed mode: git is permitted and
// certain read denies are softened to support tooling like Playwright.
func (p *Policy) Relaxed() *Policy {
	cp := *p
	cp.Mode = ModeRelaxed
	deny := make([]string, 0, len(p.DeniedExec))
	for _, cmd := range p.DeniedExec {
		if cmd == "git" {
			continue
		}
		deny = append(deny, cmd)
	}
	cp.DeniedExec = deny

	reads := make([]string, 0, len(p.SensitiveReads))
	home, _ := os.UserHomeDir()
	cacheDirs := map[string]bool{
		filepath.Join(home, "Library", "Caches"): true,
	}
	for _, r := range p.SensitiveReads {
		if cacheDirs[r] {
			continue
		}
		reads = append(reads, r)
	}
	cp.SensitiveReads = reads
	return &cp
}

// IsMandatoryDenyWrite reports whether path (or an ancestor of path) falls
// inside the mandatory write-deny set.
func (p *Policy) IsMandatoryDenyWrite(path string) bool {
	return matchesAny(path, p.MandatoryDenyWrites)
}

// IsMoveProtected reports whether path is itself a move-protected path, a
// descendant of one, or an ancestor directory of one — protecting against
// mv-edit-mv-back bypasses that only guard the exact protected path.
func (p *Policy) IsMoveProtected(path string) bool {
	if matchesAny(path, p.MoveProtected) {
		return true
	}
	target := filepath.Clean(path)
	for _, c := range p.MoveProtected {
		if strings.HasPrefix(filepath.Clean(c), target+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// IsSensitiveRead reports whether reading path is denied under the
// current mode.
func (p *Policy) IsSensitiveRead(path string) bool {
	return matchesAny(path, p.SensitiveReads)
}

// IsDeniedExec reports whether invoking cmd as a subprocess is denied.
func (p *Policy) IsDeniedExec(cmd string) bool {
	base := filepath.Base(cmd)
	for _, d := range p.DeniedExec {
		if base == d || cmd == d || base == filepath.Base(d) {
			return true
		}
	}
	return false
}

// matchesAny reports whether target equals one of candidates or is a
// filesystem descendant of one of them. Both sides are cleaned so
// trailing slashes and "." segments don't defeat the check.
func matchesAny(target string, candidates []string) bool {
	target = filepath.Clean(target)
	for _, c := range candidates {
		c = filepath.Clean(c)
		if c == "" {
			continue
		}
		if target == c {
			return true
		}
		if strings.HasPrefix(target, c+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// NetworkDecision is the outcome of resolving a skill's declared network
// policy.
type NetworkDecision int

const (
	// NetworkBlocked denies all outbound network access.
	NetworkBlocked NetworkDecision = iota
	// NetworkAllowAll permits unrestricted outbound access ("*" present).
	NetworkAllowAll
	// NetworkProxyFiltered routes traffic through the filtering proxy,
	// restricted to the accompanying domain list.
	NetworkProxyFiltered
)

// ResolveNetwork decides how a skill's declared network policy should be
// enforced. enabled=false always yields NetworkBlocked regardless of the
// outbound list.
func ResolveNetwork(enabled bool, outbound []string) (NetworkDecision, []string) {
	if !enabled || len(outbound) == 0 {
		return NetworkBlocked, nil
	}
	for _, d := range outbound {
		if d == "*" {
			return NetworkAllowAll, nil
		}
	}
	return NetworkProxyFiltered, outbound
}

// MatchesDomain reports whether host satisfies one of the domain
// patterns. Patterns may be an exact host or "*.suffix" wildcard. Both
// host and pattern are normalized to ASCII/punycode via golang.org/x/net/idna
// first, so a skill's outbound allowlist written in ASCII still matches
// a unicode domain the sandboxed process actually connects to.
func MatchesDomain(host string, patterns []string) bool {
	host = toASCIIDomain(strings.ToLower(strings.TrimSuffix(host, ".")))
	for _, p := range patterns {
		p = strings.ToLower(p)
		if strings.HasPrefix(p, "*.") {
			suffix := "." + toASCIIDomain(p[2:])
			if strings.HasSuffix(host, suffix) {
				return true
			}
			continue
		}
		if host == toASCIIDomain(p) {
			return true
		}
	}
	return false
}

// toASCIIDomain normalizes a domain to its ASCII/punycode form. Inputs
// that don't parse as a domain at all (empty, malformed) pass through
// unchanged — MatchesDomain's exact/suffix comparison still behaves
// sanely on them, it just loses unicode-normalization for that entry.
func toASCIIDomain(domain string) string {
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return domain
	}
	return ascii
}

//go:build darwin

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"strings"

	"github.com/skilllite/skilllite/internal/policy"
)

// seatbeltTemplate builds a Seatbelt (sandbox-exec) S-expression profile
// by composing the canonical deny rules from internal/policy with
// per-invocation allow rules for the skill/runtime/work directories and
// network access derived from the resolved network policy. Ported, as
// shape only (not content), from original_source's string-templated
// profile builder, using Go's text/template the way the teacher renders
// its own templated doc artifacts.
const seatbeltTemplate = `(version 1)
(deny default (with no-log))
(allow process-exec (literal "{{.Interpreter}}"))
;; log-tag: {{.LogTag}}
(allow file-read* (subpath "{{.SkillDir}}"))
(allow file-read* (subpath "{{.RuntimeDir}}"))
(allow process-exec (subpath "{{.RuntimeDir}}"))
(allow file-read* file-write* (subpath "{{.WorkDir}}"))
{{range .MandatoryDenyWrites}}(deny file-write* (subpath "{{.}}"))
{{end}}{{range .MoveProtected}}(deny file-write* process-exec (subpath "{{.}}"))
{{end}}{{range .SensitiveReads}}(deny file-read* (subpath "{{.}}"))
{{end}}{{if .NetworkAllowAll}}(allow network*)
{{else if .NetworkProxyPort}}(allow network-outbound (remote tcp "localhost:{{.NetworkProxyPort}}"))
(deny network*)
{{else}}(deny network*)
{{end}}`

type seatbeltVars struct {
	Interpreter         string
	SkillDir            string
	RuntimeDir          string
	WorkDir             string
	LogTag              string
	MandatoryDenyWrites []string
	MoveProtected       []string
	SensitiveReads      []string
	NetworkAllowAll     bool
	NetworkProxyPort    string
}

func buildSeatbeltProfile(cfg Config, pol *policy.Policy, proxyAddr string) (string, error) {
	vars := seatbeltVars{
		Interpreter:         cfg.interpreterPath(),
		SkillDir:            cfg.SkillDir,
		RuntimeDir:          cfg.RuntimeDir,
		WorkDir:             cfg.WorkDir,
		LogTag:              logTag(cfg),
		MandatoryDenyWrites: pol.MandatoryDenyWrites,
		MoveProtected:       pol.MoveProtected,
		SensitiveReads:      pol.SensitiveReads,
	}
	switch cfg.NetworkMode {
	case policy.NetworkAllowAll:
		vars.NetworkAllowAll = true
	case policy.NetworkProxyFiltered:
		if idx := strings.LastIndex(proxyAddr, ":"); idx >= 0 {
			vars.NetworkProxyPort = proxyAddr[idx+1:]
		}
	}

	tmpl, err := template.New("seatbelt").Parse(seatbeltTemplate)
	if err != nil {
		return "", fmt.Errorf("parsing seatbelt template: %w", err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("rendering seatbelt profile: %w", err)
	}
	return b.String(), nil
}

func buildSeatbeltWrapper(entryPoint string, args []string, cfg Config, proxyAddr string) (string, []string, error) {
	profile, err := buildSeatbeltProfile(cfg, currentPolicyFor(cfg), proxyAddr)
	if err != nil {
		return "", nil, err
	}
	f, err := os.CreateTemp(cfg.WorkDir, "skilllite-*.sb")
	if err != nil {
		return "", nil, fmt.Errorf("writing seatbelt profile: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(profile); err != nil {
		return "", nil, err
	}
	wrapperArgs := append([]string{"-f", f.Name(), entryPoint}, args...)
	return "sandbox-exec", wrapperArgs, nil
}

func logTag(cfg Config) string {
	return filepath.Base(cfg.SkillDir) + "-" + filepath.Base(cfg.WorkDir)
}

func (c Config) interpreterPath() string {
	return filepath.Join(c.RuntimeDir, "bin")
}

// currentPolicyFor resolves the policy a given config's level should be
// checked against — relaxed for LevelRelaxed, strict otherwise.
func currentPolicyFor(cfg Config) *policy.Policy {
	base := policy.Default()
	if cfg.Level == LevelRelaxed {
		return base.Relaxed()
	}
	return base
}

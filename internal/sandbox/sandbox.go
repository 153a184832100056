// Package sandbox executes untrusted skill code under OS-native
// isolation, enforces resource limits via pre-exec rlimits, and routes
// network access through a filtering proxy when a skill's policy calls
// for it.
package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/skilllite/skilllite/internal/errs"
	"github.com/skilllite/skilllite/internal/policy"
)

// Level selects execution isolation strictness.
type Level int

const (
	// LevelBasic applies resource limits only, no OS sandbox.
	LevelBasic Level = 1
	// LevelRelaxed applies an OS sandbox with a relaxed profile
	// (permits git, broader cache reads) for browser-automation skills.
	LevelRelaxed Level = 2
	// LevelStrict applies the full OS sandbox plus pre-execution scan
	// and explicit user confirmation. Default.
	LevelStrict Level = 3
)

// Limits bounds the resources a skill invocation may consume.
type Limits struct {
	Timeout      time.Duration
	MaxMemoryMB  int64
	MaxCPUSecs   int64
	MaxFileSize  int64 // bytes
	MaxProcesses int64
}

// DefaultLimits mirrors SKILLBOX_TIMEOUT_SECS/SKILLBOX_MAX_MEMORY_MB
// defaults.
func DefaultLimits() Limits {
	return Limits{
		Timeout:      5 * time.Minute,
		MaxMemoryMB:  512,
		MaxCPUSecs:   300,
		MaxFileSize:  100 * 1024 * 1024,
		MaxProcesses: 32,
	}
}

// KillReason names why the wait-with-limits supervisor terminated a
// child process, surfaced in Result.Stderr for the caller's benefit.
type KillReason string

const (
	KillNone      KillReason = ""
	KillTimeout   KillReason = "timeout"
	KillOOM       KillReason = "oom"
	KillCancelled KillReason = "cancelled"
)

// Config configures one sandbox invocation.
type Config struct {
	SkillDir    string // directory containing the skill, read-only mount
	RuntimeDir  string // interpreter / runtime env directory, read + exec
	WorkDir     string // temp work directory, read + write
	Level       Level
	Limits      Limits
	NetworkMode policy.NetworkDecision
	NetworkDomains []string
	AllowFallback  bool // permit unsandboxed fallback on wrapper startup failure
	Env         []string
}

// Result is the uniform execution-result contract: never an error on
// non-zero exit, only on unrecoverable spawn failure.
type Result struct {
	Stdout     string
	Stderr     string
	ExitCode   int
	Duration   time.Duration
	Kill       KillReason
	Fallback   bool // true if sandbox wrapper failed to start and we fell back unsandboxed
}

// Sandbox runs one skill invocation under the configured isolation
// level.
type Sandbox struct {
	policy *policy.Policy
}

// New builds a Sandbox consulting the given canonical policy for deny
// lists and network resolution.
func New(pol *policy.Policy) *Sandbox {
	return &Sandbox{policy: pol}
}

// Run executes the skill's entry point with inputJSON on stdin, under
// cfg's isolation level and resource limits.
func (s *Sandbox) Run(ctx context.Context, entryPoint string, args []string, inputJSON string, cfg Config) (*Result, error) {
	if err := s.precheck(entryPoint, cfg); err != nil {
		return nil, err
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if cfg.Limits.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.Limits.Timeout)
		defer cancel()
	}

	var proxyAddr string
	var stopProxy func()
	if cfg.NetworkMode == policy.NetworkProxyFiltered {
		addr, stop, err := startFilterProxy(cfg.NetworkDomains)
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeSandboxSpawn, "starting network proxy")
		}
		proxyAddr = addr
		stopProxy = stop
		defer stopProxy()
	}

	wrapper, wrapperArgs, err := buildWrapper(entryPoint, args, cfg, proxyAddr)
	if err != nil {
		if !cfg.AllowFallback {
			return nil, errs.Wrap(err, errs.CodeSandboxSpawn, "building OS isolation wrapper").WithRetryable(false)
		}
		// Fallback: unsandboxed execution, but only after an audit event.
		return s.runFallback(runCtx, entryPoint, args, inputJSON, cfg)
	}

	return s.spawn(runCtx, wrapper, wrapperArgs, inputJSON, cfg.Limits, cfg.Env)
}

// precheck re-validates the entry point and work directories against the
// canonical policy before any process is spawned — this is internal
// sandbox.Sandbox's analogue of the teacher's Sandbox.Validate, but
// delegating the deny-list source of truth to internal/policy instead of
// a locally duplicated list.
func (s *Sandbox) precheck(entryPoint string, cfg Config) error {
	if s.policy.IsMandatoryDenyWrite(cfg.WorkDir) {
		return errs.New(errs.CodePolicyDenied, "work directory falls inside mandatory-deny set").
			WithContext("work_dir", cfg.WorkDir)
	}
	if cfg.SkillDir == "" {
		return errs.New(errs.CodeInvalidInput, "skill directory is required")
	}
	return nil
}

func (s *Sandbox) runFallback(ctx context.Context, entryPoint string, args []string, inputJSON string, cfg Config) (*Result, error) {
	result, err := s.spawn(ctx, entryPoint, args, inputJSON, cfg.Limits, cfg.Env)
	if result != nil {
		result.Fallback = true
	}
	return result, err
}

// spawn runs cmd, installing resource limits in a pre-exec hook (see
// exec_unix.go) so they apply to the interpreter and every process it
// spawns, then waits under Limits with RSS polling.
func (s *Sandbox) spawn(ctx context.Context, name string, args []string, inputJSON string, limits Limits, env []string) (*Result, error) {
	start := time.Now()
	wrappedName, wrappedArgs := wrapWithRlimits(name, args, limits)
	cmd := exec.CommandContext(ctx, wrappedName, wrappedArgs...)
	cmd.Stdin = strings.NewReader(inputJSON)
	if len(env) > 0 {
		cmd.Env = env
	}
	setSysProcAttr(cmd, limits)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	waitErr := runWithLimits(ctx, cmd, limits)
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		result.Kill = KillTimeout
		result.ExitCode = 124
		result.Stderr += "\n[sandbox] killed: wall-clock timeout exceeded"
		return result, nil
	case ctx.Err() == context.Canceled:
		result.Kill = KillCancelled
		result.ExitCode = 130
		return result, nil
	}

	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, errs.Wrap(waitErr, errs.CodeSandboxSpawn, "spawning sandboxed process")
	}
	return result, nil
}

// FormatForLLM builds the structured "succeeded/failed (exit N): …" text
// the control loop shows the LLM so both stdout and stderr are always
// visible regardless of exit status.
func (r *Result) FormatForLLM() string {
	status := "succeeded"
	if r.ExitCode != 0 {
		status = "failed"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (exit %d):\n", status, r.ExitCode)
	if r.Stdout != "" {
		b.WriteString("stdout:\n")
		b.WriteString(r.Stdout)
		b.WriteString("\n")
	}
	if r.Stderr != "" {
		b.WriteString("stderr:\n")
		b.WriteString(r.Stderr)
	}
	if r.Kill != KillNone {
		fmt.Fprintf(&b, "\n[killed: %s]", r.Kill)
	}
	return b.String()
}

package agent

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/skilllite/skilllite/internal/policy"
)

// resolveConfined resolves raw against base (workDir or outputDir) and
// rejects any path that escapes it, generalized from
// pkg/tool/builtin/workdir.go's resolvePath.
func resolveConfined(base, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("invalid base dir: %w", err)
	}
	absBase = filepath.Clean(absBase)

	var candidate string
	if filepath.IsAbs(raw) {
		candidate = filepath.Clean(raw)
	} else {
		candidate = filepath.Clean(filepath.Join(absBase, raw))
	}
	if !isWithinDir(absBase, candidate) {
		return "", fmt.Errorf("path %q escapes %s", raw, absBase)
	}
	return candidate, nil
}

func isWithinDir(base, candidate string) bool {
	rel, err := filepath.Rel(base, candidate)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

// ResolvePath implements spec.md §4.D.4's path confinement: the path
// must resolve inside the workspace OR the output directory; anything
// else is rejected with a hint pointing at the tool meant for that dir.
func ResolvePath(workDir, outputDir, raw string) (string, error) {
	if p, err := resolveConfined(workDir, raw); err == nil {
		return p, nil
	}
	if outputDir != "" {
		if p, err := resolveConfined(outputDir, raw); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("path %q escapes both the workspace and the output directory; use write_output for artifacts outside the workspace", raw)
}

// WithPathConfinement rejects any file-path-bearing tool call whose
// "path" parameter escapes the workspace/output directory, before the
// tool body ever runs. write_output is passed through untouched, since
// its path is relative to the output directory and the tool confines it
// there itself.
func WithPathConfinement(pathParams ...string) Middleware {
	paramSet := make(map[string]bool, len(pathParams))
	for _, p := range pathParams {
		paramSet[p] = true
	}
	return func(next Executor) Executor {
		return func(ctx *ExecutionContext) (*ToolResult, error) {
			if ctx.ToolName == "write_output" {
				return next(ctx)
			}
			for param := range paramSet {
				raw, ok := ctx.Params[param].(string)
				if !ok || raw == "" {
					continue
				}
				resolved, err := ResolvePath(ctx.WorkDir, ctx.OutputDir, raw)
				if err != nil {
					return &ToolResult{Success: false, Error: err.Error()}, nil
				}
				ctx.Params[param] = resolved
			}
			return next(ctx)
		}
	}
}

// WithSensitivePathBlock re-enforces policy's mandatory-deny-write set at
// the agent layer for file-writing built-ins — defense-in-depth, since
// the sandbox is authoritative when skills (not the agent itself) run.
func WithSensitivePathBlock(pol *policy.Policy, pathParams ...string) Middleware {
	return func(next Executor) Executor {
		return func(ctx *ExecutionContext) (*ToolResult, error) {
			for _, param := range pathParams {
				raw, ok := ctx.Params[param].(string)
				if !ok {
					continue
				}
				if pol.IsMandatoryDenyWrite(raw) {
					return &ToolResult{
						Success: false,
						Error:   fmt.Sprintf("write to %q is blocked by mandatory deny-write policy", raw),
					}, nil
				}
			}
			return next(ctx)
		}
	}
}

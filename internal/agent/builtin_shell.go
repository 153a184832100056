package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/skilllite/skilllite/internal/policy"
)

const runCommandTimeout = 300 * time.Second

// RunCommandTool executes a shell command with a warning for denylisted
// executables, an optional confirmation callback, and a hard timeout,
// grounded on pkg/tool/builtin/shell.go's ShellCommandTool. The command
// is not checked against bash-tool allow patterns.
type RunCommandTool struct {
	Policy   *policy.Policy
	Confirm  func(command string) bool
}

func (t RunCommandTool) Name() string { return "run_command" }
func (t RunCommandTool) Description() string {
	return "Execute a shell command and return stdout, stderr, and exit code. Requires user confirmation."
}
func (t RunCommandTool) Schema() json.RawMessage {
	return schemaObject(map[string]any{
		"command": map[string]any{"type": "string", "description": "Shell command to execute"},
	}, "command")
}
func (t RunCommandTool) Execute(ctx *ExecutionContext) (*ToolResult, error) {
	command, ok := stringParam(ctx, "command")
	if !ok || strings.TrimSpace(command) == "" {
		return &ToolResult{Success: false, Error: "command parameter must be a non-empty string"}, nil
	}

	var warnings []string
	if t.Policy != nil && t.Policy.IsDeniedExec(firstWord(command)) {
		warnings = append(warnings, fmt.Sprintf("command %q matches a denylisted executable", firstWord(command)))
	}

	if t.Confirm != nil && !t.Confirm(command) {
		return &ToolResult{Success: false, Error: "command execution was not confirmed by the user"}, nil
	}

	base := ctx.Context
	if base == nil {
		base = context.Background()
	}
	runCtx, cancel := context.WithTimeout(base, runCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	if ctx.WorkDir != "" {
		cmd.Dir = ctx.WorkDir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return &ToolResult{Success: false, Error: "command timed out after 300s"}, nil
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return &ToolResult{Success: false, Error: fmt.Sprintf("failed to run command: %v", err)}, nil
		}
	}

	output := fmt.Sprintf("exit code: %d\nstdout:\n%s\nstderr:\n%s", exitCode, stdout.String(), stderr.String())
	if len(warnings) > 0 {
		output = "WARNING: " + strings.Join(warnings, "; ") + "\n\n" + output
	}

	return &ToolResult{
		Success: exitCode == 0,
		Output:  output,
		Data:    map[string]any{"exit_code": exitCode, "stdout": stdout.String(), "stderr": stderr.String()},
	}, nil
}

func firstWord(command string) string {
	fields := strings.Fields(strings.TrimSpace(command))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

//go:build !windows

package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// setSysProcAttr installs the process-group isolation the wait-with-limits
// supervisor needs to kill an entire process tree at once. Grounded on
// the teacher's exec_unix.go Setpgid idiom.
func setSysProcAttr(cmd *exec.Cmd, limits Limits) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// wrapWithRlimits rewrites (name, args) into a "sh -c" invocation that
// installs rlimits via the shell builtin `ulimit` before exec-ing the
// real target, so the limits are installed in a pre-exec hook in the
// child and inherited by the interpreter and everything it spawns — Go's
// os/exec has no native pre-exec hook, so the POSIX shell builtin stands
// in for one, same trick the OS-sandbox wrappers themselves use for
// their own resource caps.
func wrapWithRlimits(name string, args []string, limits Limits) (string, []string) {
	var ulimits []string
	if limits.MaxCPUSecs > 0 {
		ulimits = append(ulimits, fmt.Sprintf("ulimit -t %d", limits.MaxCPUSecs))
	}
	if limits.MaxFileSize > 0 {
		ulimits = append(ulimits, fmt.Sprintf("ulimit -f %d", limits.MaxFileSize/512))
	}
	if limits.MaxProcesses > 0 {
		ulimits = append(ulimits, fmt.Sprintf("ulimit -u %d", limits.MaxProcesses))
	}
	if runtime.GOOS == "linux" && limits.MaxMemoryMB > 0 {
		ulimits = append(ulimits, fmt.Sprintf("ulimit -v %d", limits.MaxMemoryMB*1024))
	}
	if len(ulimits) == 0 {
		return name, args
	}
	script := strings.Join(ulimits, "; ") + `; exec "$0" "$@"`
	return "sh", append([]string{"-c", script, name}, args...)
}

// runWithLimits waits for cmd to exit, polling RSS against
// limits.MaxMemoryMB every 500ms and killing the process group on
// breach. The wall-clock timeout itself is enforced by the caller's
// context deadline; this function only adds the memory-breach path.
func runWithLimits(ctx context.Context, cmd *exec.Cmd, limits Limits) error {
	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	if limits.MaxMemoryMB <= 0 {
		return <-done
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			if rssExceeds(cmd.Process.Pid, limits.MaxMemoryMB) {
				killProcessGroup(cmd.Process.Pid)
				return <-done
			}
		case <-ctx.Done():
			return <-done
		}
	}
}

// killProcessGroup sends SIGKILL to the whole process group so the
// interpreter's children are reaped too, not just the interpreter.
func killProcessGroup(pid int) {
	syscall.Kill(-pid, syscall.SIGKILL)
}

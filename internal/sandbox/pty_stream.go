package sandbox

import (
	"bufio"
	"os/exec"

	"github.com/creack/pty"
)

// StderrSink receives stderr output line by line as the child runs,
// rather than buffered until exit — spec.md's "stderr is streamed to
// the user for progress visibility".
type StderrSink func(line string)

// runWithPTYStderr starts cmd with its stderr attached to a pty so lines
// are available as they're written rather than only at process exit.
// Nothing in the package calls it: Sandbox.Run buffers stdout and stderr
// until exit at every level.
func runWithPTYStderr(cmd *exec.Cmd, sink StderrSink) (func() error, error) {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, err
	}
	go func() {
		scanner := bufio.NewScanner(ptmx)
		for scanner.Scan() {
			if sink != nil {
				sink(scanner.Text())
			}
		}
	}()
	return ptmx.Close, nil
}

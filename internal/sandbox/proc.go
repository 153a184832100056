package sandbox

import (
	"os/exec"
	"strconv"
	"strings"
)

// rssExceeds polls the child's resident set size via `ps`, the one
// portable way to read RSS across macOS and Linux without cgo or
// platform-specific /proc parsing. Returns false (don't kill) on any
// read error — a polling hiccup should not be mistaken for a breach.
func rssExceeds(pid int, maxMB int64) bool {
	out, err := exec.Command("ps", "-o", "rss=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return false
	}
	kb, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return false
	}
	return kb/1024 >= maxMB
}

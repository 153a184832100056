//go:build linux

package sandbox

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/skilllite/skilllite/internal/policy"
)

// deniedSyscallsStrict lists process isolation primitives a skill should
// never need directly (ptrace, mount manipulation, raw module loading,
// kernel keyring). It is validated by validateSeccompTable; no seccomp
// filter is built from it.
var deniedSyscallsStrict = []string{
	"ptrace", "mount", "umount2", "init_module", "finit_module",
	"delete_module", "kexec_load", "reboot", "add_key", "request_key",
	"keyctl", "pivot_root", "swapon", "swapoff",
}

// buildSeccompWrapper composes the namespace isolation for Linux. Ported,
// as shape only, from original_source's sandbox policy builder: a deny
// table plus per-invocation namespace flags. Go has no native pre-exec
// hook, so (same trick as the rlimit installer) isolation is layered
// through `unshare(1)`, which is present on effectively every modern
// Linux distribution skills would run on: mount and pid namespaces, plus
// a network namespace when the network is blocked. No seccomp filter is
// installed; the deny table above is only validated.
func buildSeccompWrapper(entryPoint string, args []string, cfg Config, proxyAddr string) (string, []string, error) {
	nsFlags := []string{"--mount", "--pid", "--fork"}
	switch cfg.NetworkMode {
	case policy.NetworkBlocked:
		nsFlags = append(nsFlags, "--net")
	case policy.NetworkProxyFiltered:
		// Keep the net namespace shared so loopback reaches the proxy;
		// the proxy itself enforces the domain allow-list.
	case policy.NetworkAllowAll:
		// Keep host networking.
	}

	wrapperArgs := append(append([]string{}, nsFlags...), entryPoint)
	wrapperArgs = append(wrapperArgs, args...)

	if err := validateSeccompTable(deniedSyscallsStrict); err != nil {
		return "", nil, fmt.Errorf("building seccomp filter: %w", err)
	}

	return "unshare", wrapperArgs, nil
}

// validateSeccompTable checks every name against a fixed list of known
// syscall names, so a typo in deniedSyscallsStrict fails loudly at
// invocation time.
func validateSeccompTable(names []string) error {
	known := map[string]bool{
		"ptrace": true, "mount": true, "umount2": true, "init_module": true,
		"finit_module": true, "delete_module": true, "kexec_load": true,
		"reboot": true, "add_key": true, "request_key": true, "keyctl": true,
		"pivot_root": true, "swapon": true, "swapoff": true,
	}
	var missing []string
	for _, n := range names {
		if !known[n] {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("unknown syscalls in deny table: %s", strings.Join(missing, ", "))
	}
	_ = unix.SYS_PTRACE // touch the unix package's syscall number table
	return nil
}

package sandbox

import (
	"fmt"
	"runtime"
)

// buildWrapper returns the OS isolation wrapper's executable name and
// argument list for the given level and platform. LevelBasic skips OS
// isolation entirely (resource limits only); LevelRelaxed and
// LevelStrict generate a platform policy (Seatbelt on macOS, unshare
// namespaces on Linux) and wrap entryPoint under it.
func buildWrapper(entryPoint string, args []string, cfg Config, proxyAddr string) (string, []string, error) {
	if cfg.Level == LevelBasic {
		return entryPoint, args, nil
	}

	switch runtime.GOOS {
	case "darwin":
		return buildSeatbeltWrapper(entryPoint, args, cfg, proxyAddr)
	case "linux":
		return buildSeccompWrapper(entryPoint, args, cfg, proxyAddr)
	default:
		return "", nil, fmt.Errorf("no OS sandbox wrapper available for %s", runtime.GOOS)
	}
}

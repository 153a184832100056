package sandbox

import "github.com/skilllite/skilllite/internal/sandbox/proxy"

// startFilterProxy starts the local network-filtering proxy and returns
// its bound address plus a stop function, for use only when the
// resolved network policy is proxy-filtered.
func startFilterProxy(domains []string) (string, func(), error) {
	f, err := proxy.Start(domains)
	if err != nil {
		return "", nil, err
	}
	return f.Addr(), func() { f.Close() }, nil
}

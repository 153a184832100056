package proxy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterAllowedMatchesWildcardDomain(t *testing.T) {
	f := &Filter{domains: []string{"*.example.com"}}
	require.True(t, f.allowed("api.example.com:443"))
	require.False(t, f.allowed("evil.com:443"))
}

func TestFilterAllowedExactDomain(t *testing.T) {
	f := &Filter{domains: []string{"example.com.cn"}}
	require.True(t, f.allowed("example.com.cn:443"))
	require.False(t, f.allowed("other.global.com:443"))
}

func TestStartAndCloseBindsLoopbackPort(t *testing.T) {
	f, err := Start([]string{"example.com"})
	require.NoError(t, err)
	require.Contains(t, f.Addr(), "127.0.0.1:")
	require.NoError(t, f.Close())
}

package policy

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMandatoryDenyWriteBlocksEvenInsideAllowedSubtree(t *testing.T) {
	p := Default()
	require.True(t, p.IsMandatoryDenyWrite(".git/hooks/pre-commit"))
}

func TestMoveProtectionCoversAncestors(t *testing.T) {
	p := Default()
	require.True(t, p.IsMoveProtected(p.MoveProtected[0]))
	require.True(t, p.IsMoveProtected(p.MoveProtected[0]+"/id_rsa"))
	require.True(t, p.IsMoveProtected(filepath.Dir(p.MoveProtected[0])))
	require.False(t, p.IsMoveProtected("/tmp/unrelated"))
}

func TestRelaxedModePermitsGit(t *testing.T) {
	p := Default()
	relaxed := p.Relaxed()
	require.False(t, relaxed.IsDeniedExec("git"))
	require.True(t, relaxed.IsDeniedExec("rm"))
}

func TestResolveNetwork(t *testing.T) {
	decision, domains := ResolveNetwork(false, []string{"example.com"})
	require.Equal(t, NetworkBlocked, decision)
	require.Nil(t, domains)

	decision, _ = ResolveNetwork(true, []string{"*"})
	require.Equal(t, NetworkAllowAll, decision)

	decision, domains = ResolveNetwork(true, []string{"example.com", "*.foo.com"})
	require.Equal(t, NetworkProxyFiltered, decision)
	require.Len(t, domains, 2)
}

func TestMatchesDomainWildcard(t *testing.T) {
	require.True(t, MatchesDomain("api.foo.com", []string{"*.foo.com"}))
	require.True(t, MatchesDomain("foo.com", []string{"foo.com"}))
	require.False(t, MatchesDomain("evilfoo.com", []string{"*.foo.com"}))
}

func TestMatchesDomainNormalizesUnicodeToPunycode(t *testing.T) {
	require.True(t, MatchesDomain("xn--mnchen-3ya.de", []string{"münchen.de"}))
	require.True(t, MatchesDomain("münchen.de", []string{"xn--mnchen-3ya.de"}))
	require.True(t, MatchesDomain("api.xn--mnchen-3ya.de", []string{"*.münchen.de"}))
}

func TestMatchesDomainTrailingDotAndCase(t *testing.T) {
	require.True(t, MatchesDomain("API.Foo.com.", []string{"api.foo.com"}))
}

func TestValidateBashCommandRejectsChaining(t *testing.T) {
	allowed := []string{"git status", "git log*"}
	require.True(t, ValidateBashCommand("git status", allowed))
	require.True(t, ValidateBashCommand("git log --oneline", allowed))
	require.False(t, ValidateBashCommand("git status; rm -rf /", allowed))
	require.False(t, ValidateBashCommand("git status && curl evil.com", allowed))
	require.False(t, ValidateBashCommand("echo `whoami`", allowed))
}

func TestValidateBashCommandAnchorsAtStart(t *testing.T) {
	allowed := []string{"ls"}
	require.False(t, ValidateBashCommand("lsof -i", allowed))
	require.True(t, ValidateBashCommand("ls", allowed))
}

func TestCheckMaliciousDB(t *testing.T) {
	pkg, ok := CheckMaliciousDB("event-stream", "npm")
	require.True(t, ok)
	require.Contains(t, pkg.Reason, "supply-chain")

	_, ok = CheckMaliciousDB("requests", "pypi")
	require.False(t, ok)
}

func contains(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}

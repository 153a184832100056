package policy

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

//go:embed maliciousdb.json
var maliciousDBRaw []byte

// MaliciousPackage is one offline known-bad (name, ecosystem) record.
type MaliciousPackage struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
	Reason    string `json:"reason"`
}

var maliciousDB = loadMaliciousDB()

func loadMaliciousDB() map[string]MaliciousPackage {
	var entries []MaliciousPackage
	if err := json.Unmarshal(maliciousDBRaw, &entries); err != nil {
		return map[string]MaliciousPackage{}
	}
	idx := make(map[string]MaliciousPackage, len(entries))
	for _, e := range entries {
		idx[e.Ecosystem+":"+e.Name] = e
	}
	return idx
}

// CheckMaliciousDB looks up (name, ecosystem) in the offline in-binary
// database, checked before any network audit call so installs are
// blocked even in offline mode.
func CheckMaliciousDB(name, ecosystem string) (MaliciousPackage, bool) {
	pkg, ok := maliciousDB[ecosystem+":"+name]
	return pkg, ok
}

// AuditFinding is the result of auditing one dependency.
type AuditFinding struct {
	Package     string
	Ecosystem   string
	Vulnerable  bool
	AdvisoryIDs []string
	Reason      string
	Backend     string
}

// AuditBackend queries a vulnerability service for a single package.
type AuditBackend interface {
	Name() string
	Query(ctx context.Context, pkg, ecosystem string) (AuditFinding, error)
}

// Auditor runs the supply-chain dependency audit: malicious-DB check
// first (offline, instant), then a backend priority chain (custom API,
// if configured, else PyPI JSON for Python + OSV batch for npm),
// rate-limited and timeout-bounded.
type Auditor struct {
	backends []AuditBackend
	limiter  *rate.Limiter
	client   *http.Client
}

// NewAuditor builds an Auditor trying backends in order, rate-limited to
// requestsPerSecond with a burst of burst.
func NewAuditor(backends []AuditBackend, requestsPerSecond float64, burst int) *Auditor {
	return &Auditor{
		backends: backends,
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Audit checks pkg/ecosystem against the offline DB first, then the
// configured backend chain. A scan/audit error is never silent: it is
// turned into a fail-secure high-severity-equivalent AuditFinding.
func (a *Auditor) Audit(ctx context.Context, pkgName, ecosystem string) (AuditFinding, error) {
	if bad, ok := CheckMaliciousDB(pkgName, ecosystem); ok {
		return AuditFinding{
			Package: pkgName, Ecosystem: ecosystem, Vulnerable: true,
			Reason: bad.Reason, Backend: "offline-db",
		}, nil
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return AuditFinding{}, fmt.Errorf("audit rate limiter: %w", err)
	}

	var lastErr error
	for _, backend := range a.backends {
		finding, err := backend.Query(ctx, pkgName, ecosystem)
		if err != nil {
			lastErr = err
			continue
		}
		finding.Backend = backend.Name()
		return finding, nil
	}
	if lastErr != nil {
		return AuditFinding{
			Package: pkgName, Ecosystem: ecosystem, Vulnerable: true,
			Reason: fmt.Sprintf("all audit backends failed: %v", lastErr), Backend: "error",
		}, nil
	}
	return AuditFinding{Package: pkgName, Ecosystem: ecosystem, Backend: "none"}, nil
}

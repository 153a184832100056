package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

// CustomAuditBackend queries a user-configured OSV-compatible endpoint
// (SKILLLITE_AUDIT_API), the highest-priority backend when set.
type CustomAuditBackend struct {
	Endpoint string
	Client   *http.Client
}

func (b *CustomAuditBackend) Name() string { return "custom" }

func (b *CustomAuditBackend) Query(ctx context.Context, pkg, ecosystem string) (AuditFinding, error) {
	reqBody, _ := json.Marshal(map[string]string{"package": pkg, "ecosystem": ecosystem})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return AuditFinding{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.Client.Do(req)
	if err != nil {
		return AuditFinding{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return AuditFinding{}, fmt.Errorf("custom audit backend returned %d", resp.StatusCode)
	}
	var out struct {
		Vulnerable  bool     `json:"vulnerable"`
		AdvisoryIDs []string `json:"advisory_ids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return AuditFinding{}, err
	}
	return AuditFinding{Package: pkg, Ecosystem: ecosystem, Vulnerable: out.Vulnerable, AdvisoryIDs: out.AdvisoryIDs}, nil
}

// PyPIBackend queries the PyPI JSON API for package metadata/vulnerability
// info for Python packages.
type PyPIBackend struct {
	MirrorURL string // defaults to https://pypi.org/pypi
	Client    *http.Client
}

func (b *PyPIBackend) Name() string { return "pypi" }

func (b *PyPIBackend) base() string {
	if b.MirrorURL != "" {
		return b.MirrorURL
	}
	if env := os.Getenv("PYPI_MIRROR_URL"); env != "" {
		return env
	}
	return "https://pypi.org/pypi"
}

func (b *PyPIBackend) Query(ctx context.Context, pkg, ecosystem string) (AuditFinding, error) {
	if ecosystem != "pypi" {
		return AuditFinding{}, fmt.Errorf("pypi backend does not handle ecosystem %q", ecosystem)
	}
	url := fmt.Sprintf("%s/%s/json", b.base(), pkg)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return AuditFinding{}, err
	}
	resp, err := b.Client.Do(req)
	if err != nil {
		return AuditFinding{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return AuditFinding{Package: pkg, Ecosystem: ecosystem}, nil
	}
	if resp.StatusCode >= 400 {
		return AuditFinding{}, fmt.Errorf("pypi backend returned %d", resp.StatusCode)
	}
	var out struct {
		Vulnerabilities []struct {
			ID string `json:"id"`
		} `json:"vulnerabilities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return AuditFinding{}, err
	}
	finding := AuditFinding{Package: pkg, Ecosystem: ecosystem}
	for _, v := range out.Vulnerabilities {
		finding.Vulnerable = true
		finding.AdvisoryIDs = append(finding.AdvisoryIDs, v.ID)
	}
	return finding, nil
}

// OSVBackend queries the OSV batch API, used for npm packages (and as a
// fallback for any ecosystem the custom/PyPI backends don't cover).
type OSVBackend struct {
	APIURL string // defaults to https://api.osv.dev/v1/querybatch
	Client *http.Client
}

func (b *OSVBackend) Name() string { return "osv" }

func (b *OSVBackend) base() string {
	if b.APIURL != "" {
		return b.APIURL
	}
	if env := os.Getenv("OSV_API_URL"); env != "" {
		return env
	}
	return "https://api.osv.dev/v1/querybatch"
}

func (b *OSVBackend) Query(ctx context.Context, pkg, ecosystem string) (AuditFinding, error) {
	osvEcosystem := "npm"
	if ecosystem == "pypi" {
		osvEcosystem = "PyPI"
	}
	reqBody, _ := json.Marshal(map[string]any{
		"queries": []map[string]any{{
			"package": map[string]string{"name": pkg, "ecosystem": osvEcosystem},
		}},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.base(), bytes.NewReader(reqBody))
	if err != nil {
		return AuditFinding{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.Client.Do(req)
	if err != nil {
		return AuditFinding{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return AuditFinding{}, fmt.Errorf("osv backend returned %d", resp.StatusCode)
	}
	var out struct {
		Results []struct {
			Vulns []struct {
				ID string `json:"id"`
			} `json:"vulns"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return AuditFinding{}, err
	}
	finding := AuditFinding{Package: pkg, Ecosystem: ecosystem}
	for _, r := range out.Results {
		for _, v := range r.Vulns {
			finding.Vulnerable = true
			finding.AdvisoryIDs = append(finding.AdvisoryIDs, v.ID)
		}
	}
	return finding, nil
}

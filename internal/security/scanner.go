package security

import (
	"regexp"
	"strings"
)

// rulePattern pairs a regex with the metadata needed to turn a match into
// an Issue, mirroring the teacher's line-scanning authPattern shape.
type rulePattern struct {
	ruleID      string
	re          *regexp.Regexp
	severity    Severity
	category    Category
	description string
}

var codePatterns = []rulePattern{
	{"eval-exec", regexp.MustCompile(`\b(eval|exec)\s*\(`), SeverityHigh, CategoryCodeExecution,
		"eval/exec-family invocation executes arbitrary code at runtime"},
	{"py-os-system", regexp.MustCompile(`\bos\.(system|popen)\s*\(`), SeverityHigh, CategoryShellInjection,
		"os.system/os.popen shells out without argument isolation"},
	{"py-subprocess-shell", regexp.MustCompile(`subprocess\.\w+\([^)]*shell\s*=\s*True`), SeverityHigh, CategoryShellInjection,
		"subprocess call with shell=True is vulnerable to injection"},
	{"js-child-process-exec", regexp.MustCompile(`child_process\.(exec|execSync)\s*\(`), SeverityHigh, CategoryShellInjection,
		"child_process.exec runs through a shell, vulnerable to injection"},
	{"shell-pipe-interpreter", regexp.MustCompile(`\b(curl|wget)\b[^|]*\|\s*(sh|bash|python|node)\b`), SeverityCritical, CategoryShellInjection,
		"pipes a network download directly into an interpreter"},
	{"py-import-hook", regexp.MustCompile(`sys\.meta_path|importlib\.machinery\.(PathFinder|FileFinder)`), SeverityMedium, CategoryImportHook,
		"manipulates the Python import machinery"},
	{"js-require-hook", regexp.MustCompile(`Module\._(load|resolveFilename)\s*=`), SeverityMedium, CategoryImportHook,
		"overrides Node's module resolution"},
	{"credential-exfil-env", regexp.MustCompile(`(AWS_SECRET|API_KEY|PRIVATE_KEY|TOKEN)[A-Z_]*\s*[:=]`), SeverityHigh, CategoryCredentialLeak,
		"references a credential-shaped environment variable"},
	{"credential-exfil-send", regexp.MustCompile(`requests\.post\([^)]*(\benv\b|os\.environ)`), SeverityCritical, CategoryCredentialLeak,
		"sends environment contents over the network"},
	{"dangerous-rm", regexp.MustCompile(`rm\s+-rf\s+(/|~|\$HOME)\b`), SeverityCritical, CategoryFileSystemAbuse,
		"recursive delete of a root or home path"},
}

// scanner.go does not import internal/policy; ScanContent takes the
// deny-path list as an argument instead.

// ScanContent runs the static code scanner over raw source text. Every
// pattern above is a language-agnostic regex applied to every line; a line
// containing one of denyWritePaths adds a Critical issue.
func ScanContent(content string, denyWritePaths []string) ScanResult {
	var issues []Issue
	lines := strings.Split(content, "\n")

	for lineNum, line := range lines {
		for _, p := range codePatterns {
			if loc := p.re.FindStringIndex(line); loc != nil {
				issues = append(issues, Issue{
					RuleID:      p.ruleID,
					Severity:    p.severity,
					Category:    p.category,
					Line:        lineNum + 1,
					Description: p.description,
					Snippet:     strings.TrimSpace(line),
				})
			}
		}
		for _, deny := range denyWritePaths {
			if deny == "" {
				continue
			}
			if strings.Contains(line, deny) {
				issues = append(issues, Issue{
					RuleID:      "mandatory-deny-write",
					Severity:    SeverityCritical,
					Category:    CategoryFileSystemAbuse,
					Line:        lineNum + 1,
					Description: "references a mandatory-deny write path: " + deny,
					Snippet:     strings.TrimSpace(line),
				})
			}
		}
	}

	return NewScanResult(issues)
}

// ScanFile scans the given already-read file content, attributing issues
// to path only via the caller (ScanResult carries no path field by
// design — callers that need per-file attribution wrap Issue.Snippet
// themselves); kept as a thin wrapper so call sites read naturally.
func ScanFile(content string, denyWritePaths []string) ScanResult {
	return ScanContent(content, denyWritePaths)
}

// skillDocPatterns detect agent-social-engineering and supply-chain
// instructions embedded in SKILL.md prose rather than code.
var skillDocPatterns = []rulePattern{
	{"doc-disable-safeguards", regexp.MustCompile(`(?i)\b(disable|ignore|ignore all)\s+(safety|safeguards?|sandbox|scan(?:ning)?)\b`), SeverityCritical, CategorySocialEngineer,
		"instructs the agent to disable its own safety mechanisms"},
	{"doc-fetch-and-run", regexp.MustCompile(`(?i)\b(curl|wget|download)\b.{0,40}\b(run|execute|pipe to|eval)\b`), SeverityCritical, CategorySupplyChain,
		"instructs fetching and executing remote code"},
	{"doc-install-undeclared", regexp.MustCompile(`(?i)\b(pip install|npm install|npm i)\b`), SeverityMedium, CategorySupplyChain,
		"instructs installing a package outside the declared dependency manifest"},
	{"doc-grant-elevated", regexp.MustCompile(`(?i)\b(run as (root|administrator)|sudo\s)`), SeverityHigh, CategorySocialEngineer,
		"requests elevated privileges"},
}

// ScanSkillDoc scans SKILL.md's markdown body (frontmatter already
// stripped by the caller) for supply-chain / social-engineering patterns.
func ScanSkillDoc(body string) ScanResult {
	var issues []Issue
	lines := strings.Split(body, "\n")
	for lineNum, line := range lines {
		for _, p := range skillDocPatterns {
			if p.re.MatchString(line) {
				if p.ruleID == "doc-install-undeclared" {
					// An install that names the manifest is a declared install.
					lower := strings.ToLower(line)
					if strings.Contains(lower, "requirements") || strings.Contains(lower, "package.json") {
						continue
					}
				}
				issues = append(issues, Issue{
					RuleID:      p.ruleID,
					Severity:    p.severity,
					Category:    p.category,
					Line:        lineNum + 1,
					Description: p.description,
					Snippet:     strings.TrimSpace(line),
				})
			}
		}
	}
	return NewScanResult(issues)
}

package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/skilllite/skilllite/internal/policy"
	"github.com/skilllite/skilllite/internal/sandbox"
	"github.com/skilllite/skilllite/internal/security"
	"github.com/skilllite/skilllite/internal/skill"
)

// toolHandler implements one named MCP tool.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) (toolCallResult, error)

var toolHandlers = map[string]toolHandler{
	"list_skills":     handleListSkills,
	"get_skill_info":  handleGetSkillInfo,
	"run_skill":       handleRunSkill,
	"scan_code":       handleScanCode,
	"execute_code":    handleExecuteCode,
}

func toolDefinitions() []map[string]any {
	return []map[string]any{
		{"name": "list_skills", "description": "List all skills available in the registry.",
			"inputSchema": map[string]any{"type": "object", "properties": map[string]any{}}},
		{"name": "get_skill_info", "description": "Get the metadata and documentation for one skill.",
			"inputSchema": map[string]any{"type": "object", "properties": map[string]any{
				"name": map[string]any{"type": "string"},
			}, "required": []string{"name"}}},
		{"name": "run_skill", "description": "Run a skill's entry point under sandbox isolation, passing input on stdin.",
			"inputSchema": map[string]any{"type": "object", "properties": map[string]any{
				"name":      map[string]any{"type": "string"},
				"input":     map[string]any{"type": "object"},
				"confirmed": map[string]any{"type": "boolean"},
				"scan_id":   map[string]any{"type": "string"},
			}, "required": []string{"name"}}},
		{"name": "scan_code", "description": "Statically scan a code snippet for security issues, returning a scan_id for two-phase confirmation.",
			"inputSchema": map[string]any{"type": "object", "properties": map[string]any{
				"code":     map[string]any{"type": "string"},
				"language": map[string]any{"type": "string"},
			}, "required": []string{"code"}}},
		{"name": "execute_code", "description": "Execute a code snippet under sandbox isolation; High-severity findings require a matching scan_id and confirmed=true.",
			"inputSchema": map[string]any{"type": "object", "properties": map[string]any{
				"code":      map[string]any{"type": "string"},
				"language":  map[string]any{"type": "string"},
				"confirmed": map[string]any{"type": "boolean"},
				"scan_id":   map[string]any{"type": "string"},
			}, "required": []string{"code"}}},
	}
}

func handleListSkills(_ context.Context, s *Server, _ json.RawMessage) (toolCallResult, error) {
	var b strings.Builder
	for _, sk := range s.skills.List() {
		if sk.Archived {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", sk.ToolName(), sk.Description)
	}
	if b.Len() == 0 {
		return textResult("no skills registered"), nil
	}
	return textResult(b.String()), nil
}

type skillNameArgs struct {
	Name string `json:"name"`
}

func handleGetSkillInfo(_ context.Context, s *Server, args json.RawMessage) (toolCallResult, error) {
	var a skillNameArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return errorResult("invalid arguments: " + err.Error()), nil
	}
	sk, ok := s.skills.Get(a.Name)
	if !ok {
		return errorResult(fmt.Sprintf("no such skill: %s", a.Name)), nil
	}
	info := fmt.Sprintf("# %s\n\nkind: %s\ndescription: %s\nsummary: %s\nentry_point: %s\nnetwork: enabled=%v outbound=%v\n\n%s",
		sk.Name, sk.Kind(), sk.Description, sk.Summary, sk.EntryPoint, sk.Network.Enabled, sk.Network.Outbound, sk.Content)
	return textResult(info), nil
}

type runSkillArgs struct {
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	Confirmed bool            `json:"confirmed"`
	ScanID    string          `json:"scan_id"`
}

func handleRunSkill(ctx context.Context, s *Server, args json.RawMessage) (toolCallResult, error) {
	var a runSkillArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return errorResult("invalid arguments: " + err.Error()), nil
	}
	sk, ok := s.skills.Get(a.Name)
	if !ok {
		return errorResult(fmt.Sprintf("no such skill: %s", a.Name)), nil
	}
	if sk.Kind() == skill.KindPromptOnly {
		return textResult(sk.Content), nil
	}

	entryPath := filepath.Join(sk.Dir, sk.EntryPoint)
	code, err := os.ReadFile(entryPath)
	if err != nil {
		return errorResult("reading skill entry point: " + err.Error()), nil
	}

	result, err := s.authorizeAndRun(ctx, string(code), a.Confirmed, a.ScanID, func(ctx context.Context) (*sandbox.Result, error) {
		netMode, netDomains := policy.ResolveNetwork(sk.Network.Enabled, sk.Network.Outbound)
		cfg := sandbox.Config{
			SkillDir:       sk.Dir,
			WorkDir:        s.workDir,
			Level:          sandbox.LevelStrict,
			Limits:         sandbox.DefaultLimits(),
			NetworkMode:    netMode,
			NetworkDomains: netDomains,
		}
		return s.sandbox.Run(ctx, entryPath, nil, string(a.Input), cfg)
	})
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(result.FormatForLLM()), nil
}

type scanCodeArgs struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

func handleScanCode(_ context.Context, s *Server, args json.RawMessage) (toolCallResult, error) {
	var a scanCodeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return errorResult("invalid arguments: " + err.Error()), nil
	}
	result := security.ScanContent(a.Code, s.policy.MandatoryDenyWrites)
	scanID := s.scans.Put(a.Code, result)

	var b strings.Builder
	fmt.Fprintf(&b, "scan_id: %s\nhighest_severity: %s\n", scanID, result.HighestSeverity())
	for _, issue := range result.Issues {
		fmt.Fprintf(&b, "- [%s] line %d: %s\n", issue.Severity, issue.Line, issue.Description)
	}
	if len(result.Issues) == 0 {
		b.WriteString("no issues found\n")
	}
	return textResult(b.String()), nil
}

type executeCodeArgs struct {
	Code      string `json:"code"`
	Language  string `json:"language"`
	Confirmed bool   `json:"confirmed"`
	ScanID    string `json:"scan_id"`
}

func handleExecuteCode(ctx context.Context, s *Server, args json.RawMessage) (toolCallResult, error) {
	var a executeCodeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return errorResult("invalid arguments: " + err.Error()), nil
	}

	result, err := s.authorizeAndRun(ctx, a.Code, a.Confirmed, a.ScanID, func(ctx context.Context) (*sandbox.Result, error) {
		entry, writeErr := s.writeAdHocScript(a.Code, a.Language)
		if writeErr != nil {
			return nil, writeErr
		}
		cfg := sandbox.Config{
			SkillDir:    filepath.Dir(entry),
			WorkDir:     s.workDir,
			Level:       sandbox.LevelStrict,
			Limits:      sandbox.DefaultLimits(),
			NetworkMode: policy.NetworkBlocked,
		}
		return s.sandbox.Run(ctx, entry, nil, "", cfg)
	})
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(result.FormatForLLM()), nil
}

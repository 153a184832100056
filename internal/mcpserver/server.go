package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/skilllite/skilllite/internal/policy"
	"github.com/skilllite/skilllite/internal/sandbox"
	"github.com/skilllite/skilllite/internal/security"
	"github.com/skilllite/skilllite/internal/skill"
)

const protocolVersion = "2024-11-05"

// Server dispatches MCP JSON-RPC requests against a live skill registry
// and sandbox, matching the teacher's pkg/agentserver connection handler
// in shape: one long-lived struct holding the shared singletons, a
// per-message dispatch method, no per-request state beyond the scan
// cache.
type Server struct {
	skills  *skill.Registry
	sandbox *sandbox.Sandbox
	policy  *policy.Policy
	workDir string
	scans   *scanCache
	log     *slog.Logger
}

// NewServer builds a Server. workDir is the scratch directory ad hoc
// execute_code snippets and run_skill invocations get as their sandboxed
// working directory.
func NewServer(skills *skill.Registry, sb *sandbox.Sandbox, pol *policy.Policy, workDir string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{skills: skills, sandbox: sb, policy: pol, workDir: workDir, scans: newScanCache(), log: log}
}

// Serve runs the newline-delimited JSON-RPC loop until r is exhausted or
// ctx is canceled, writing one JSON-RPC message per line to w for every
// request (notifications get no response).
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg JSONRPCMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			s.writeMessage(w, newError(nil, ParseError, "invalid JSON: "+err.Error()))
			continue
		}

		resp := s.dispatch(ctx, &msg)
		if resp == nil {
			continue // notification, no response
		}
		s.writeMessage(w, resp)
	}
	return scanner.Err()
}

func (s *Server) writeMessage(w io.Writer, msg *JSONRPCMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("marshaling mcp response", "error", err)
		return
	}
	fmt.Fprintf(w, "%s\n", data)
}

func (s *Server) dispatch(ctx context.Context, msg *JSONRPCMessage) *JSONRPCMessage {
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg.ID)
	case "notifications/initialized":
		return nil
	case "tools/list":
		return s.handleToolsList(msg.ID)
	case "tools/call":
		return s.handleToolsCall(ctx, msg.ID, msg.Params)
	default:
		if msg.ID == nil {
			return nil // unknown notification, ignore
		}
		return newError(msg.ID, MethodNotFound, "unknown method: "+msg.Method)
	}
}

func (s *Server) handleInitialize(id *json.RawMessage) *JSONRPCMessage {
	result := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools":     map[string]any{},
			"resources": map[string]any{},
			"prompts":   map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    "skilllite-mcp",
			"version": "0.1.0",
		},
	}
	resp, err := newResult(id, result)
	if err != nil {
		return newError(id, InternalError, err.Error())
	}
	return resp
}

func (s *Server) handleToolsList(id *json.RawMessage) *JSONRPCMessage {
	resp, err := newResult(id, map[string]any{"tools": toolDefinitions()})
	if err != nil {
		return newError(id, InternalError, err.Error())
	}
	return resp
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolsCall(ctx context.Context, id *json.RawMessage, params json.RawMessage) *JSONRPCMessage {
	var p toolsCallParams
	if err := json.Unmarshal(params, &p); err != nil {
		return newError(id, InvalidParams, "invalid tools/call params: "+err.Error())
	}

	handler, ok := toolHandlers[p.Name]
	if !ok {
		return newError(id, MethodNotFound, "unknown tool: "+p.Name)
	}

	result, err := handler(ctx, s, p.Arguments)
	if err != nil {
		return newError(id, InternalError, err.Error())
	}
	resp, err := newResult(id, result)
	if err != nil {
		return newError(id, InternalError, err.Error())
	}
	return resp
}

// sandboxRunFunc executes one sandboxed run once authorization clears.
type sandboxRunFunc func(ctx context.Context) (*sandbox.Result, error)

// authorizeAndRun implements spec.md §6's two-phase confirmation: scan
// code, and only proceed to run it when the highest-severity finding
// permits it outright (Low/Medium), or when the caller supplied a
// matching, unexpired scan_id with confirmed=true (High), or reject
// unconditionally (Critical).
func (s *Server) authorizeAndRun(ctx context.Context, code string, confirmed bool, scanID string, run sandboxRunFunc) (*sandbox.Result, error) {
	result := security.ScanContent(code, s.policy.MandatoryDenyWrites)

	switch result.HighestSeverity() {
	case security.SeverityCritical:
		return nil, fmt.Errorf("execution refused: critical-severity finding (%s)", describeFirst(result))
	case security.SeverityHigh:
		if !confirmed {
			return nil, fmt.Errorf("execution requires confirmation: high-severity finding (%s)", describeFirst(result))
		}
		if scanID == "" {
			return nil, fmt.Errorf("confirmed=true requires a matching scan_id from scan_code")
		}
		if _, err := s.scans.Lookup(scanID, code); err != nil {
			return nil, err
		}
	default:
		// Low/Medium execute without confirmation.
	}

	return run(ctx)
}

func describeFirst(r security.ScanResult) string {
	if len(r.Issues) == 0 {
		return "no details"
	}
	return r.Issues[0].Description
}

// writeAdHocScript writes an execute_code snippet to a scratch file under
// the server's work directory, named by its declared language so the
// sandbox wrapper picks the right interpreter.
func (s *Server) writeAdHocScript(code, language string) (string, error) {
	ext := extForLanguage(language)
	dir := filepath.Join(s.workDir, "mcp-adhoc")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "snippet"+ext)
	if err := os.WriteFile(path, []byte(code), 0o755); err != nil {
		return "", err
	}
	return path, nil
}

func extForLanguage(language string) string {
	switch language {
	case "python", "py":
		return ".py"
	case "javascript", "js", "node":
		return ".js"
	case "shell", "sh", "bash":
		return ".sh"
	default:
		return ".py"
	}
}

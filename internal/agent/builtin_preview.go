package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	previewPortRangeStart = 7800
	previewPortRangeSize  = 20
)

// PreviewServer serves a workspace directory over loopback HTTP with
// no-cache headers, auto-scanning a small port range for a free one —
// the teacher's bind-retry idiom for local dev HTTP surfaces, reused
// here for skill preview output.
type PreviewServer struct {
	srv  *http.Server
	Addr string
}

func noCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
		next.ServeHTTP(w, r)
	})
}

// StartPreviewServer binds to the first free port in the scan range and
// serves dir's contents over it.
func StartPreviewServer(dir string) (*PreviewServer, error) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(noCacheMiddleware)
	r.Handle("/*", http.FileServer(http.Dir(dir)))

	for offset := 0; offset < previewPortRangeSize; offset++ {
		port := previewPortRangeStart + offset
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			continue
		}
		srv := &http.Server{Handler: r}
		go srv.Serve(ln)
		return &PreviewServer{srv: srv, Addr: addr}, nil
	}
	return nil, fmt.Errorf("no free port found in range %d-%d", previewPortRangeStart, previewPortRangeStart+previewPortRangeSize-1)
}

// Stop shuts the preview server down.
func (p *PreviewServer) Stop(ctx context.Context) error {
	if p == nil || p.srv == nil {
		return nil
	}
	return p.srv.Shutdown(ctx)
}

// PreviewServerTool is the LLM-facing tool wrapper around PreviewServer.
type PreviewServerTool struct {
	active map[string]*PreviewServer
}

func NewPreviewServerTool() *PreviewServerTool {
	return &PreviewServerTool{active: make(map[string]*PreviewServer)}
}

func (t *PreviewServerTool) Name() string { return "preview_server" }
func (t *PreviewServerTool) Description() string {
	return "Start a local HTTP preview server for a directory of output artifacts."
}
func (t *PreviewServerTool) Schema() json.RawMessage {
	return schemaObject(map[string]any{
		"path": map[string]any{"type": "string", "description": "Directory to serve", "default": "."},
	})
}
func (t *PreviewServerTool) Execute(ctx *ExecutionContext) (*ToolResult, error) {
	dir := ctx.OutputDir
	if p, ok := stringParam(ctx, "path"); ok && p != "" {
		resolved, err := ResolvePath(ctx.WorkDir, ctx.OutputDir, p)
		if err != nil {
			return &ToolResult{Success: false, Error: err.Error()}, nil
		}
		dir = resolved
	}

	if existing, ok := t.active[dir]; ok {
		return &ToolResult{Success: true, Output: "preview already running at http://" + existing.Addr}, nil
	}

	srv, err := StartPreviewServer(dir)
	if err != nil {
		return &ToolResult{Success: false, Error: err.Error()}, nil
	}
	t.active[dir] = srv
	return &ToolResult{
		Success: true,
		Output:  "preview server started at http://" + srv.Addr,
		Data:    map[string]any{"addr": srv.Addr, "dir": dir},
	}, nil
}

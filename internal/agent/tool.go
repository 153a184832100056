package agent

import (
	"encoding/json"

	"github.com/skilllite/skilllite/internal/llm"
)

// Tool is one built-in or skill-synthesized function the LLM may call.
// Generalized from pkg/tool.Tool, dropping the teacher's TOON codec in
// favor of plain JSON (internal/agent has no equivalent dependency to
// wire that codec to once pkg/tool is generalized away from it).
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx *ExecutionContext) (*ToolResult, error)
}

// ToDefinition converts a Tool into the wire schema the LLM sees.
func ToDefinition(t Tool) llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Schema(),
	}
}

// Registry holds every tool the control loop may dispatch to, including
// both fixed built-ins and per-skill synthesized tools.
type Registry struct {
	tools map[string]Tool
	chain Middleware
}

// NewRegistry builds an empty registry wrapping every dispatch with chain.
func NewRegistry(chain Middleware) *Registry {
	return &Registry{tools: make(map[string]Tool), chain: chain}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the wire schema for every registered tool, for
// inclusion in the ChatRequest sent to the LLM.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, ToDefinition(t))
	}
	return defs
}

// Dispatch executes the named tool through the middleware chain.
func (r *Registry) Dispatch(ctx *ExecutionContext) (*ToolResult, error) {
	t, ok := r.tools[ctx.ToolName]
	if !ok {
		return &ToolResult{Success: false, Error: "unknown tool: " + ctx.ToolName}, nil
	}
	exec := func(c *ExecutionContext) (*ToolResult, error) { return t.Execute(c) }
	if r.chain != nil {
		exec = r.chain(exec)
	}
	return exec(ctx)
}

package agent

import (
	"context"
	"time"
)

// ExecutionContext carries request metadata through the middleware chain,
// generalized from pkg/tool.ExecutionContext.
type ExecutionContext struct {
	Context   context.Context
	ToolName  string
	SessionID string
	CallID    string
	Params    map[string]any
	StartTime time.Time
	Attempt   int
	WorkDir   string
	OutputDir string
}

// ToolResult is the uniform shape every built-in tool returns.
type ToolResult struct {
	Success bool
	Output  string
	Data    map[string]any
	Error   string
}

// Executor executes one tool call.
type Executor func(ctx *ExecutionContext) (*ToolResult, error)

// Middleware wraps an Executor with additional behavior.
type Middleware func(next Executor) Executor

// Chain composes middlewares in order — the first middleware passed is
// outermost, matching pkg/tool.Chain's composition order.
func Chain(middlewares ...Middleware) Middleware {
	return func(final Executor) Executor {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Timeout applies a per-tool or default timeout, grounded on
// pkg/tool/middleware_timeout.go.
func Timeout(defaultTimeout time.Duration, perTool map[string]time.Duration) Middleware {
	return func(next Executor) Executor {
		return func(ctx *ExecutionContext) (*ToolResult, error) {
			timeout := defaultTimeout
			if perTool != nil {
				if t, ok := perTool[ctx.ToolName]; ok {
					timeout = t
				}
			}
			if timeout <= 0 {
				return next(ctx)
			}
			base := ctx.Context
			if base == nil {
				base = context.Background()
			}
			timeoutCtx, cancel := context.WithTimeout(base, timeout)
			defer cancel()
			ctx.Context = timeoutCtx
			return next(ctx)
		}
	}
}

package sandbox

import (
	"context"

	"github.com/codeharbor/sandboxexec/model"
)

// ToolInvoker is the host-side collaborator that actually calls an MCP
// tool. Execute never constructs one itself; it is supplied by the
// embedder (via WithToolInvoker) and dispatched to once per `invoke`
// frame a worker emits, per spec §4.6.1.d "on any RPC bridge request
// from the worker, dispatch to the host-side tool invoker".
//
// Invoke must be safe for concurrent use: a single execution may have
// several tool calls in flight, and the host may run many executions
// concurrently.
type ToolInvoker interface {
	// Invoke calls server.tool with args and returns its JSON-able
	// result, or an MCPToolError describing why it failed. A non-nil
	// *model.MCPToolError is re-raised inside the sandbox as a
	// catchable Error.
	Invoke(ctx context.Context, server, tool string, args map[string]any) (any, *model.MCPToolError)
}

// ToolInvokerFunc adapts a plain function to ToolInvoker.
type ToolInvokerFunc func(ctx context.Context, server, tool string, args map[string]any) (any, *model.MCPToolError)

func (f ToolInvokerFunc) Invoke(ctx context.Context, server, tool string, args map[string]any) (any, *model.MCPToolError) {
	return f(ctx, server, tool, args)
}

// noopInvoker rejects every call; used when no ToolInvoker is
// configured but a manifest still presents tool proxies (e.g. a unit
// test of the validator/cache paths that never intends to call a
// tool).
type noopInvoker struct{}

func (noopInvoker) Invoke(_ context.Context, server, tool string, _ map[string]any) (any, *model.MCPToolError) {
	return nil, &model.MCPToolError{
		Server:  server,
		Tool:    tool,
		Message: "no ToolInvoker configured for this sandbox.Executor",
	}
}

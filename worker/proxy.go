package worker

import (
	"sync"

	"github.com/codeharbor/sandboxexec/internal/workerloop"
	"github.com/codeharbor/sandboxexec/model"
	"github.com/codeharbor/sandboxexec/rpcbridge"
	"github.com/dop251/goja"
	"github.com/google/uuid"
)

// pendingCall holds the jsPromise backing one in-flight tool invocation.
type pendingCall struct {
	promise *jsPromise
}

// toolProxies builds one goja.Object per server, each exposing a
// Promise-returning method per tool in manifest, mirroring the
// one-JS-method-per-RPC-method shape of goja-grpc's jsCreateClient —
// generalized from gRPC services to MCP tool invocations.
type toolProxies struct {
	vm     *goja.Runtime
	loop   *workerloop.Loop
	writer *rpcbridge.Writer

	mu      sync.Mutex
	pending map[string]pendingCall
}

func newToolProxies(vm *goja.Runtime, loop *workerloop.Loop, writer *rpcbridge.Writer) *toolProxies {
	return &toolProxies{
		vm:      vm,
		loop:    loop,
		writer:  writer,
		pending: map[string]pendingCall{},
	}
}

// Build constructs the root object injected as the sandbox's tool
// namespace: `tools.<server>.<camelCaseMethod>(args)`.
func (p *toolProxies) Build(manifest model.ToolManifest) *goja.Object {
	root := p.vm.NewObject()
	for server, methods := range manifest.Servers {
		serverObj := p.vm.NewObject()
		for methodName, def := range methods {
			_ = serverObj.Set(methodName, p.makeMethod(server, def.Name))
		}
		_ = root.Set(server, serverObj)
	}
	return root
}

func (p *toolProxies) makeMethod(server, tool string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var args map[string]any
		if len(call.Arguments) > 0 {
			if v, ok := call.Argument(0).Export().(map[string]any); ok {
				args = v
			}
		}

		callID := uuid.NewString()
		promise := newJSPromise(p.vm, p.loop)

		p.mu.Lock()
		p.pending[callID] = pendingCall{promise: promise}
		p.mu.Unlock()

		if err := p.writer.Write(rpcbridge.KindInvoke, rpcbridge.InvokePayload{
			CallID: callID,
			Server: server,
			Tool:   tool,
			Args:   args,
		}); err != nil {
			p.mu.Lock()
			delete(p.pending, callID)
			p.mu.Unlock()
			promise.reject(err.Error())
		}

		return p.vm.ToValue(wrapPromise(p.vm, p.loop, promise))
	}
}

// Resolve settles the pending call registered for callID. It must be
// invoked on the loop's owning goroutine (the stdin-reader goroutine
// hands it to workerloop.Loop.Post to arrange this), since resolving a
// jsPromise schedules reactions back onto that same loop.
func (p *toolProxies) Resolve(callID string, value any) {
	p.settle(callID, func(c pendingCall) { c.promise.resolve(value) })
}

// Reject settles the pending call registered for callID with mcpErr,
// re-raising it inside the sandbox as a catchable Error-like object
// whose .message is the MCP server's own message, not a Go-formatted
// wrapper, plus .server/.tool for callers that want to branch on them.
func (p *toolProxies) Reject(callID string, mcpErr model.MCPToolError) {
	p.settle(callID, func(c pendingCall) {
		errObj := p.vm.NewGoError(&mcpErr)
		_ = errObj.Set("message", mcpErr.Message)
		_ = errObj.Set("server", mcpErr.Server)
		_ = errObj.Set("tool", mcpErr.Tool)
		c.promise.reject(errObj)
	})
}

func (p *toolProxies) settle(callID string, fn func(pendingCall)) {
	p.mu.Lock()
	c, ok := p.pending[callID]
	if ok {
		delete(p.pending, callID)
	}
	p.mu.Unlock()
	if ok {
		fn(c)
	}
}

// AbandonAll rejects every outstanding call, used when the bridge's
// stdin channel closes unexpectedly.
func (p *toolProxies) AbandonAll(reason string) {
	p.mu.Lock()
	pending := p.pending
	p.pending = map[string]pendingCall{}
	p.mu.Unlock()

	for _, c := range pending {
		c.promise.reject(reason)
	}
}

// PendingCount reports the number of outstanding invocations.
func (p *toolProxies) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

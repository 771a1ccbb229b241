package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/codeharbor/sandboxexec/internal/workerloop"
	"github.com/codeharbor/sandboxexec/model"
	"github.com/codeharbor/sandboxexec/rpcbridge"
	"github.com/dop251/goja"
)

// heartbeatInterval bounds how often the worker proves liveness to the
// host while a long-running tool call or timer is in flight.
const heartbeatInterval = 5 * time.Second

// Run drives one sandboxed execution end to end over stdin/stdout: it
// reads the bootstrap envelope, builds the goja runtime and tool
// proxies, executes the bootstrapped code, answers RPC replies as they
// arrive, and finally writes the `__SANDBOX_RESULT__:` marker line
// carrying the outcome. The marker line is written directly to stdout,
// bypassing the rpcbridge envelope framing used for invoke/heartbeat
// frames, so the host's result parser can recognize it by prefix alone
// without first attempting JSON-envelope decoding.
func Run(stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
	reader := rpcbridge.NewReader(stdin)
	writer := rpcbridge.NewWriter(stdout)

	bootstrapEnv, err := reader.Next()
	if err != nil {
		return fmt.Errorf("worker: reading bootstrap envelope: %w", err)
	}
	if bootstrapEnv.Kind != rpcbridge.KindBootstrap {
		return fmt.Errorf("worker: expected bootstrap envelope, got %q", bootstrapEnv.Kind)
	}
	var bootstrap rpcbridge.BootstrapPayload
	if err := bootstrapEnv.Decode(&bootstrap); err != nil {
		return fmt.Errorf("worker: decoding bootstrap payload: %w", err)
	}

	loop := workerloop.NewLoop()
	vm := newRuntime(loop, stderr, bootstrap.AllowedReadPaths)
	proxies := newToolProxies(vm, loop, writer)

	for name, value := range bootstrap.Context {
		if err := vm.Set(name, value); err != nil {
			return fmt.Errorf("worker: binding context value %q: %w", name, err)
		}
	}
	if err := vm.Set("tools", proxies.Build(bootstrap.ToolManifest)); err != nil {
		return fmt.Errorf("worker: binding tool proxies: %w", err)
	}

	if err := writer.Write(rpcbridge.KindReady, struct{}{}); err != nil {
		return fmt.Errorf("worker: writing ready envelope: %w", err)
	}

	stopHeartbeat := make(chan struct{})
	heartbeatDone := make(chan struct{})
	go emitHeartbeats(writer, stopHeartbeat, heartbeatDone)

	go pumpReplies(reader, loop, proxies)

	ctx := context.Background()
	if bootstrap.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, msToDuration(bootstrap.TimeoutMs))
		defer cancel()
		// The loop cannot preempt a synchronous snippet (e.g. an
		// infinite loop), so interrupt the runtime itself at the deadline.
		interrupt := time.AfterFunc(msToDuration(bootstrap.TimeoutMs), func() {
			vm.Interrupt("TIMEOUT: execution timed out")
		})
		defer interrupt.Stop()
	}

	var (
		execErr      error   // vm.RunString-level error (syntax, panic)
		succeeded    bool
		resultValue  any
		rejectReason any
	)
	codeDone := false

	loop.Post(func() {
		top, err := runCode(vm, bootstrap.Code)
		if err != nil {
			execErr = err
			codeDone = true
			return
		}
		settle := func(ok bool, value any) {
			succeeded = ok
			if ok {
				resultValue = value
			} else {
				rejectReason = value
			}
			codeDone = true
		}
		if thenable, ok := asThenable(top); ok {
			thenable.then(vm,
				func(v any) { settle(true, v) },
				func(v any) { settle(false, v) },
			)
			return
		}
		settle(true, top.Export())
	})

	pumpErr := loop.RunUntil(ctx, func() bool {
		return codeDone && proxies.PendingCount() == 0
	})

	close(stopHeartbeat)
	<-heartbeatDone

	output := model.WorkerOutput{}
	switch {
	case pumpErr != nil && !codeDone:
		output.Error = describeTimeout(pumpErr)
	case execErr != nil:
		output.Error = describeJSError(execErr)
		output.ErrorStack = jsStack(execErr)
	case !succeeded:
		output.Error, output.ErrorStack = describeRejection(rejectReason)
	default:
		output.Success = true
		output.Result = resultValue
	}

	encoded, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("worker: encoding result: %w", err)
	}
	line := append([]byte(model.ResultMarker), encoded...)
	line = append(line, '\n')
	if err := writer.WriteRaw(line); err != nil {
		return fmt.Errorf("worker: writing result marker: %w", err)
	}
	return nil
}

// pumpReplies continuously reads frames from reader and hands
// result/error replies to loop.Post, so they settle tool-proxy
// promises on the loop's owning goroutine instead of racing the
// goja.Runtime directly. It returns once the bridge closes or a frame
// fails to decode, abandoning any calls still outstanding.
func pumpReplies(reader *rpcbridge.Reader, loop *workerloop.Loop, proxies *toolProxies) {
	for {
		env, err := reader.Next()
		if err != nil {
			reason := "worker: host closed the RPC bridge"
			if err != io.EOF {
				reason = fmt.Sprintf("worker: reading RPC bridge: %v", err)
			}
			loop.Post(func() { proxies.AbandonAll(reason) })
			return
		}
		switch env.Kind {
		case rpcbridge.KindResult:
			var payload rpcbridge.ResultPayload
			if err := env.Decode(&payload); err != nil {
				continue
			}
			loop.Post(func() { proxies.Resolve(payload.CallID, payload.Value) })
		case rpcbridge.KindError:
			var payload rpcbridge.ErrorPayload
			if err := env.Decode(&payload); err != nil {
				continue
			}
			loop.Post(func() { proxies.Reject(payload.CallID, payload.Error) })
		}
	}
}

// emitHeartbeats writes a heartbeat frame on a fixed interval until
// stop is closed, then closes done. The Writer's own mutex makes this
// safe alongside invoke frames and the final result-marker write.
func emitHeartbeats(writer *rpcbridge.Writer, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = writer.Write(rpcbridge.KindHeartbeat, struct{}{})
		case <-stop:
			return
		}
	}
}

func describeTimeout(err error) string {
	if err == context.DeadlineExceeded {
		return "TIMEOUT: execution timed out"
	}
	return err.Error()
}

// describeJSError extracts a human-readable message from a goja
// execution error, preferring a thrown Error object's .message over
// the Go-level error string.
func describeJSError(err error) string {
	if ex, ok := err.(*goja.Exception); ok {
		if obj, ok := ex.Value().(*goja.Object); ok {
			if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
				return msg.String()
			}
		}
		return ex.Value().String()
	}
	return err.Error()
}

// jsStack extracts a thrown Error object's .stack property, if present.
func jsStack(err error) string {
	if ex, ok := err.(*goja.Exception); ok {
		if obj, ok := ex.Value().(*goja.Object); ok {
			if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
				return stack.String()
			}
		}
	}
	return ""
}

// describeRejection turns a promise rejection reason into the
// (message, stack) pair WorkerOutput carries, regardless of whether
// the snippet threw an Error object, a bare string/number, or an
// MCPToolError re-raised by a tool proxy.
func describeRejection(reason any) (message, stack string) {
	switch r := reason.(type) {
	case jsErrorInfo:
		return r.Message, r.Stack
	case error:
		return r.Error(), ""
	case string:
		return r, ""
	case nil:
		return "execution rejected with no reason", ""
	default:
		return fmt.Sprintf("%v", r), ""
	}
}

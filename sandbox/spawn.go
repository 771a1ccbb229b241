package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/codeharbor/sandboxexec/model"
	"github.com/codeharbor/sandboxexec/rpcbridge"
)

// killGrace is added on top of the execution's own timeout before the
// host forcibly kills the worker process. The worker enforces the same
// deadline itself, via context.WithTimeout around its own event loop
// and a goja.Runtime.Interrupt for synchronous code, so under normal
// operation the worker's graceful timeout path fires first and reports
// a TIMEOUT result; this is the hard backstop for a worker that fails
// to report at all.
const killGrace = 2 * time.Second

// spawnWorker runs one bootstrap payload through a fresh worker
// subprocess, dispatching invoke frames to invoker as they arrive, and
// returns the worker's full captured stdout for parseOutput. It
// implements spec §4.6.1.a-e: isolated subprocess spawn, bootstrap,
// the completion/timeout race, RPC dispatch, and stdout collection.
func (e *Executor) spawnWorker(ctx context.Context, bootstrap rpcbridge.BootstrapPayload, invoker ToolInvoker) ([]byte, error) {
	hardCtx, cancel := context.WithTimeout(ctx, time.Duration(bootstrap.TimeoutMs)*time.Millisecond+killGrace)
	defer cancel()

	cmd := exec.CommandContext(hardCtx, e.cfg.workerBinary, workerSubcommandSentinel)
	cmd.Env = []string{} // no environment read, per RF-1 deny-by-default

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("sandbox: opening worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("sandbox: opening worker stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("sandbox: starting worker process: %w", err)
	}

	writer := rpcbridge.NewWriter(stdin)
	env, err := rpcbridge.Encode(rpcbridge.KindBootstrap, bootstrap)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("sandbox: encoding bootstrap payload: %w", err)
	}
	if err := writer.WriteEnvelope(env); err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("sandbox: writing bootstrap envelope: %w", err)
	}

	var captured bytes.Buffer
	var wg sync.WaitGroup

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 8<<20)

	for scanner.Scan() {
		line := scanner.Bytes()
		captured.Write(line)
		captured.WriteByte('\n')

		if bytes.HasPrefix(line, []byte(model.ResultMarker)) {
			continue
		}

		var frame rpcbridge.Envelope
		if err := json.Unmarshal(line, &frame); err != nil {
			continue // not a frame we understand; already captured verbatim
		}
		if frame.Kind != rpcbridge.KindInvoke {
			continue
		}
		var invoke rpcbridge.InvokePayload
		if err := frame.Decode(&invoke); err != nil {
			continue
		}

		wg.Add(1)
		go func(invoke rpcbridge.InvokePayload) {
			defer wg.Done()
			e.dispatchInvoke(hardCtx, writer, invoker, invoke)
		}(invoke)
	}

	wg.Wait()
	_ = stdin.Close()
	waitErr := cmd.Wait()

	out := captured.Bytes()
	if waitErr != nil && !bytes.Contains(out, []byte(model.ResultMarker)) {
		if hardCtx.Err() == context.DeadlineExceeded {
			return out, fmt.Errorf("TIMEOUT: worker process killed after exceeding its deadline")
		}
		return out, fmt.Errorf("sandbox: worker process exited: %w", waitErr)
	}
	return out, nil
}

// dispatchInvoke calls invoker for one invoke frame and writes the
// matching result/error reply back over the bridge.
func (e *Executor) dispatchInvoke(ctx context.Context, writer *rpcbridge.Writer, invoker ToolInvoker, invoke rpcbridge.InvokePayload) {
	value, mcpErr := invoker.Invoke(ctx, invoke.Server, invoke.Tool, invoke.Args)
	if mcpErr != nil {
		_ = writer.Write(rpcbridge.KindError, rpcbridge.ErrorPayload{CallID: invoke.CallID, Error: *mcpErr})
		return
	}
	_ = writer.Write(rpcbridge.KindResult, rpcbridge.ResultPayload{CallID: invoke.CallID, Value: value})
}

// looksLikeTimeoutExit is used by parseError's caller when spawnWorker
// itself failed (no result marker at all) rather than the worker
// reporting a JS-level error; it decides whether to preserve the
// TIMEOUT-classified message untouched or wrap it as a USER_ERROR for
// the normal classification path.
func looksLikeTimeoutExit(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "TIMEOUT")
}

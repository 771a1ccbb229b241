package sandbox

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/codeharbor/sandboxexec/limiter"
	"github.com/codeharbor/sandboxexec/model"
	"github.com/stretchr/testify/require"
)

// TestMain lets this test binary double as the worker subprocess: when
// re-exec'd with the hidden sentinel argument (os.Executable() resolves
// to the compiled test binary itself, since no WithWorkerBinary option
// is given below), MaybeRunWorker intercepts before the normal go test
// flag parsing and test run ever happens.
func TestMain(m *testing.M) {
	if ran, err := MaybeRunWorker(); ran {
		if err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func newTestExecutor(t *testing.T, opts ...Option) *Executor {
	t.Helper()
	limiter.ResetInstance()
	t.Cleanup(limiter.ResetInstance)
	base := []Option{WithCache(false, 0, 0)}
	exec, err := NewExecutor(nil, append(base, opts...)...)
	require.NoError(t, err)
	return exec
}

// Seed scenario 1: execute("return 1+1") -> {success:true, result:2}.
func TestExecute_SimpleArithmetic(t *testing.T) {
	exec := newTestExecutor(t)
	result := exec.Execute(context.Background(), "return 1+1", model.Context{}, model.NewToolManifest())
	require.True(t, result.Success)
	require.Equal(t, int64(2), toInt(t, result.Result))
}

// Seed scenario 2: eval("1+1") is rejected by the Security Validator
// before any worker is spawned.
func TestExecute_RejectsEval(t *testing.T) {
	exec := newTestExecutor(t)
	result := exec.Execute(context.Background(), `eval("1+1")`, model.Context{}, model.NewToolManifest())
	require.False(t, result.Success)
	require.Equal(t, model.ErrorTypeSecurity, result.Error.Type)
	require.Contains(t, result.Error.Message, "eval")
}

// Seed scenario 3: context values are bound as globals.
func TestExecute_UsesContextValues(t *testing.T) {
	exec := newTestExecutor(t)
	result := exec.Execute(context.Background(), "return x*y", model.Context{"x": 10, "y": 20}, model.NewToolManifest())
	require.True(t, result.Success)
	require.Equal(t, int64(200), toInt(t, result.Result))
}

// Seed scenario 4: a __proto__ key in context is rejected.
func TestExecute_RejectsDangerousContextKey(t *testing.T) {
	exec := newTestExecutor(t)
	vars := model.Context{"__proto__": model.Context{"p": true}, "userId": 1}
	result := exec.Execute(context.Background(), "return userId", vars, model.NewToolManifest())
	require.False(t, result.Success)
	require.Equal(t, model.ErrorTypeSecurity, result.Error.Type)
	require.Contains(t, result.Error.Message, "__proto__")
}

// Seed scenario 5: an infinite loop is killed by the wall-clock timeout.
func TestExecute_TimesOut(t *testing.T) {
	exec := newTestExecutor(t, WithTimeout(300*time.Millisecond))
	start := time.Now()
	result := exec.Execute(context.Background(), "while(true){}", model.Context{}, model.NewToolManifest())
	elapsed := time.Since(start)
	require.False(t, result.Success)
	require.Equal(t, model.ErrorTypeTimeout, result.Error.Type)
	require.Less(t, elapsed, 2*time.Second)
}

// Seed scenario 6: calling fetch (no network capability) is a
// PermissionError, not a bare ReferenceError.
func TestExecute_NoNetworkCapability(t *testing.T) {
	exec := newTestExecutor(t)
	result := exec.Execute(context.Background(), "return fetch('https://example.com')", model.Context{}, model.NewToolManifest())
	require.False(t, result.Success)
	require.Equal(t, model.ErrorTypePermission, result.Error.Type)
}

// Seed scenario 7: a cache hit short-circuits the worker entirely and
// reports zero execution time.
func TestExecute_CacheHit(t *testing.T) {
	exec := newTestExecutor(t, WithCache(true, 100, time.Hour))

	code := "return 41+1"
	first := exec.Execute(context.Background(), code, model.Context{}, model.NewToolManifest())
	require.True(t, first.Success)

	start := time.Now()
	second := exec.Execute(context.Background(), code, model.Context{}, model.NewToolManifest())
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.True(t, second.Success)
	require.Equal(t, int64(0), second.ExecutionTimeMs)
	require.Equal(t, first.Result, second.Result)
}

// Seed scenario 8: exceeding maxConcurrent rejects with a
// ResourceLimitError of type CONCURRENT_EXECUTIONS.
func TestExecute_ConcurrentExecutionsExhausted(t *testing.T) {
	limiter.ResetInstance()
	t.Cleanup(limiter.ResetInstance)
	lim := limiter.GetInstance(limiter.Config{MaxConcurrent: 2, DisableMemoryPressureDetection: true})

	tok1, err := lim.Acquire(1)
	require.Nil(t, err)
	tok2, err := lim.Acquire(1)
	require.Nil(t, err)
	defer lim.Release(tok1)
	defer lim.Release(tok2)

	exec := newTestExecutor(t)
	result := exec.Execute(context.Background(), "return 1", model.Context{}, model.NewToolManifest())
	require.False(t, result.Success)
	require.Equal(t, model.ErrorTypeResourceQuota, result.Error.Type)
	require.Equal(t, limiter.LimitConcurrentExecutions, result.Error.LimitType)
}

// Tool invocation round-trips through the RPC bridge and is visible to
// user code as a resolved promise value.
func TestExecute_ToolInvocation(t *testing.T) {
	invoker := ToolInvokerFunc(func(_ context.Context, server, tool string, args map[string]any) (any, *model.MCPToolError) {
		require.Equal(t, "search", server)
		require.Equal(t, "lookup", tool)
		return map[string]any{"echoed": args["q"]}, nil
	})
	exec := newTestExecutor(t, WithToolInvoker(invoker))

	manifest := model.NewToolManifest()
	manifest.Add("lookup", model.ToolDefinition{Server: "search", Name: "lookup", Version: "v1"})

	code := `
		var res = await tools.search.lookup({q: "hi"});
		return res.echoed;
	`
	result := exec.Execute(context.Background(), code, model.Context{}, manifest)
	require.True(t, result.Success)
	require.Equal(t, "hi", result.Result)
}

// An MCPToolError surfaced by the invoker is catchable inside the
// sandbox rather than aborting the whole execution.
func TestExecute_ToolErrorIsCatchable(t *testing.T) {
	invoker := ToolInvokerFunc(func(_ context.Context, server, tool string, _ map[string]any) (any, *model.MCPToolError) {
		return nil, &model.MCPToolError{Server: server, Tool: tool, Message: "rate limited"}
	})
	exec := newTestExecutor(t, WithToolInvoker(invoker))

	manifest := model.NewToolManifest()
	manifest.Add("lookup", model.ToolDefinition{Server: "search", Name: "lookup", Version: "v1"})

	code := `
		try {
			await tools.search.lookup({});
			return "unreachable";
		} catch (e) {
			return "caught:" + e.message;
		}
	`
	result := exec.Execute(context.Background(), code, model.Context{}, manifest)
	require.True(t, result.Success)
	require.Equal(t, "caught:rate limited", result.Result)
}

// PermissionNone narrows the configured read allow-list to nothing for
// that one call, even though the Executor itself was configured with an
// allow-listed directory.
func TestExecute_PermissionNoneDeniesConfiguredReadPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/f.txt", []byte("data"), 0o600))

	exec := newTestExecutor(t, WithAllowedReadPaths(dir))
	code := `return fs.readFile("` + dir + `/f.txt")`

	ok := exec.Execute(context.Background(), code, model.Context{}, model.NewToolManifest())
	require.True(t, ok.Success)
	require.Equal(t, "data", ok.Result)

	denied := exec.Execute(context.Background(), code, model.Context{}, model.NewToolManifest(), PermissionNone)
	require.False(t, denied.Success)
	require.Equal(t, model.ErrorTypePermission, denied.Error.Type)
}

func toInt(t *testing.T, v any) int64 {
	t.Helper()
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		t.Fatalf("expected numeric result, got %T(%v)", v, v)
		return 0
	}
}

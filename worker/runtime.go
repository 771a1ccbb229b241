package worker

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codeharbor/sandboxexec/internal/workerloop"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
)

func msToDuration(ms int64) time.Duration {
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

// stderrPrinter implements goja_nodejs/console.Printer by writing to
// stderr instead of the default stdout — stdout is reserved entirely
// for the rpcbridge wire protocol and the final result-marker line, so
// sandboxed console.log calls must never touch it.
type stderrPrinter struct {
	w io.Writer
}

func (p stderrPrinter) Log(s string)   { fmt.Fprintln(p.w, s) }
func (p stderrPrinter) Warn(s string)  { fmt.Fprintln(p.w, s) }
func (p stderrPrinter) Error(s string) { fmt.Fprintln(p.w, s) }

// newRuntime constructs a goja.Runtime with the require module system
// enabled (for parity with goja-grpc's registration pattern, even
// though no native modules besides console are registered here — the
// spec's "no dynamic code load" rule means user code never calls
// require itself), console bound to stderr, and setTimeout family
// bindings delegating to loop.
func newRuntime(loop *workerloop.Loop, stderr io.Writer, allowedReadPaths []string) *goja.Runtime {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	registry := require.NewRegistry()
	registry.Enable(vm)
	console.Enable(vm) // default console; overridden by our Printer below

	// Re-register console bound to our stderr-only Printer, superseding
	// goja_nodejs's default stdout-writing console module.
	module := vm.Get("console").(*goja.Object)
	bindConsoleMethods(vm, module, stderrPrinter{w: stderr})

	bindTimers(vm, loop)
	bindPromise(vm, loop)
	bindDeniedCapabilities(vm)
	bindFilesystem(vm, allowedReadPaths)

	return vm
}

// bindFilesystem exposes a single `fs.readFile(path)` method, the only
// filesystem capability a sandboxed execution ever gets, per spec §6
// "Read access, if any, limited to the configured allow-list". A path
// outside every allowedRoots entry (after symlink-free Clean/Abs
// resolution) is rejected with a permission-phrased error rather than
// attempted, matching bindDeniedCapabilities' network stubs.
func bindFilesystem(vm *goja.Runtime, allowedRoots []string) {
	fs := vm.NewObject()
	_ = fs.Set("readFile", func(call goja.FunctionCall) goja.Value {
		path := call.Argument(0).String()
		resolved, err := filepath.Abs(path)
		if err != nil {
			panic(vm.NewGoError(fmt.Errorf("fs.readFile: resolving %q: %w", path, err)))
		}
		if !withinAllowedRoots(resolved, allowedRoots) {
			panic(vm.NewGoError(fmt.Errorf("fs.readFile is not permitted: %q is outside the granted read capability", path)))
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			panic(vm.NewGoError(fmt.Errorf("fs.readFile: %w", err)))
		}
		return vm.ToValue(string(data))
	})
	_ = vm.Set("fs", fs)
}

func withinAllowedRoots(resolved string, allowedRoots []string) bool {
	for _, root := range allowedRoots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(rootAbs, resolved)
		if err != nil {
			continue
		}
		if rel == "." || (!strings.HasPrefix(rel, "..") && rel != "..") {
			return true
		}
	}
	return false
}

// deniedGlobals are bound to stubs that throw a permission-phrased
// error instead of being left undefined, per RF-1's "capabilities
// denied by default" posture: a snippet calling fetch should observe a
// catchable, classifiable PermissionError (spec seed scenario 6), not
// an opaque ReferenceError indistinguishable from a typo.
var deniedGlobals = []string{"fetch", "XMLHttpRequest", "WebSocket"}

func bindDeniedCapabilities(vm *goja.Runtime) {
	for _, name := range deniedGlobals {
		name := name
		_ = vm.Set(name, func(call goja.FunctionCall) goja.Value {
			panic(vm.NewGoError(fmt.Errorf("%s is not permitted: this sandbox grants no network capability", name)))
		})
	}
}

func bindConsoleMethods(vm *goja.Runtime, module *goja.Object, p stderrPrinter) {
	logFn := func(call goja.FunctionCall) goja.Value {
		p.Log(formatArgs(call))
		return goja.Undefined()
	}
	errFn := func(call goja.FunctionCall) goja.Value {
		p.Error(formatArgs(call))
		return goja.Undefined()
	}
	warnFn := func(call goja.FunctionCall) goja.Value {
		p.Warn(formatArgs(call))
		return goja.Undefined()
	}
	_ = module.Set("log", logFn)
	_ = module.Set("info", logFn)
	_ = module.Set("debug", logFn)
	_ = module.Set("warn", warnFn)
	_ = module.Set("error", errFn)
}

func formatArgs(call goja.FunctionCall) string {
	parts := make([]any, 0, len(call.Arguments))
	for _, a := range call.Arguments {
		parts = append(parts, a.String())
	}
	return fmt.Sprintln(parts...)
}

func bindTimers(vm *goja.Runtime, loop *workerloop.Loop) {
	_ = vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("setTimeout requires a function as first argument"))
		}
		delayMs := call.Argument(1).ToInteger()
		id := loop.SetTimeout(msToDuration(delayMs), func() {
			if _, err := fn(goja.Undefined()); err != nil {
				panic(err)
			}
		})
		return vm.ToValue(id)
	})
	_ = vm.Set("clearTimeout", func(call goja.FunctionCall) goja.Value {
		loop.Clear(call.Argument(0).ToInteger())
		return goja.Undefined()
	})
	_ = vm.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("setInterval requires a function as first argument"))
		}
		delayMs := call.Argument(1).ToInteger()
		id := loop.SetInterval(msToDuration(delayMs), func() {
			if _, err := fn(goja.Undefined()); err != nil {
				panic(err)
			}
		})
		return vm.ToValue(id)
	})
	_ = vm.Set("clearInterval", func(call goja.FunctionCall) goja.Value {
		loop.Clear(call.Argument(0).ToInteger())
		return goja.Undefined()
	})
	_ = vm.Set("queueMicrotask", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("queueMicrotask requires a function"))
		}
		loop.QueueMicrotask(func() {
			if _, err := fn(goja.Undefined()); err != nil {
				panic(err)
			}
		})
		return goja.Undefined()
	})
}

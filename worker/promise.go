package worker

import (
	"strconv"
	"sync"

	"github.com/codeharbor/sandboxexec/internal/workerloop"
	"github.com/dop251/goja"
)

// promiseState tracks a jsPromise's settlement.
type promiseState int

const (
	promisePending promiseState = iota
	promiseFulfilled
	promiseRejected
)

// jsPromise is a minimal Promises/A+ implementation bound to
// internal/workerloop instead of goja's native job queue. The worker
// replaces the global `Promise` constructor with one backed by this
// type so that both user code (`new Promise(...)`) and tool-proxy
// results (toolProxies.makeMethod) interoperate with `await` through
// the same thenable shape — generalizing goja-eventloop.Adapter's
// ChainedPromise (which binds the same kind of custom Promise to its
// own go-eventloop.Loop) onto workerloop.Loop.
type jsPromise struct {
	vm   *goja.Runtime
	loop *workerloop.Loop

	mu        sync.Mutex
	state     promiseState
	value     any
	callbacks []func()
}

func newJSPromise(vm *goja.Runtime, loop *workerloop.Loop) *jsPromise {
	return &jsPromise{vm: vm, loop: loop}
}

func (p *jsPromise) resolve(v any) {
	if thenable, ok := asThenable(v); ok {
		thenable.then(p.vm, func(inner any) { p.settle(promiseFulfilled, inner) }, func(inner any) { p.settle(promiseRejected, inner) })
		return
	}
	p.settle(promiseFulfilled, v)
}

func (p *jsPromise) reject(v any) {
	p.settle(promiseRejected, v)
}

func (p *jsPromise) settle(state promiseState, v any) {
	p.mu.Lock()
	if p.state != promisePending {
		p.mu.Unlock()
		return
	}
	p.state = state
	p.value = v
	cbs := p.callbacks
	p.callbacks = nil
	p.mu.Unlock()

	for _, cb := range cbs {
		p.loop.QueueMicrotask(cb)
	}
}

// then registers Go-level reactions, used internally for thenable
// chaining (not the JS-facing method — see the "then" property set in
// wrapPromise below).
func (p *jsPromise) then(onFulfilled, onRejected func(any)) {
	reaction := func() {
		p.mu.Lock()
		state, value := p.state, p.value
		p.mu.Unlock()
		switch state {
		case promiseFulfilled:
			if onFulfilled != nil {
				onFulfilled(value)
			}
		case promiseRejected:
			if onRejected != nil {
				onRejected(value)
			}
		}
	}

	p.mu.Lock()
	if p.state == promisePending {
		p.callbacks = append(p.callbacks, reaction)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.loop.QueueMicrotask(reaction)
}

// thenableAdapter wraps anything with a callable then(onFulfilled, onRejected)
// shape — either our own jsPromise-backed objects, or any JS object a
// sandboxed script constructs with a `then` method, per the generic
// Promise-resolution algorithm.
type thenableAdapter struct {
	vm  *goja.Runtime
	obj *goja.Object
}

func (t thenableAdapter) then(vm *goja.Runtime, onFulfilled, onRejected func(any)) {
	thenFn, _ := goja.AssertFunction(t.obj.Get("then"))
	resolveCb := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		onFulfilled(call.Argument(0).Export())
		return goja.Undefined()
	})
	rejectCb := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		onRejected(exportRejection(call.Argument(0)))
		return goja.Undefined()
	})
	_, _ = thenFn(t.obj, resolveCb, rejectCb)
}

// jsErrorInfo carries a thrown Error object's message/stack, extracted
// before Export() (which may drop the non-enumerable stack property).
type jsErrorInfo struct {
	Message string
	Stack   string
}

// exportRejection extracts a rejection reason in a form the final
// result-marker encoding can use: an Error-shaped object becomes
// jsErrorInfo (preserving .message/.stack); anything else is exported
// as a plain JSON-able value.
func exportRejection(v goja.Value) any {
	if obj, ok := v.(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			stack := ""
			if s := obj.Get("stack"); s != nil && !goja.IsUndefined(s) {
				stack = s.String()
			}
			return jsErrorInfo{Message: msg.String(), Stack: stack}
		}
	}
	return v.Export()
}

func asThenable(v any) (interface {
	then(vm *goja.Runtime, onFulfilled, onRejected func(any))
}, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	thenVal := obj.Get("then")
	if thenVal == nil || goja.IsUndefined(thenVal) {
		return nil, false
	}
	if _, callable := goja.AssertFunction(thenVal); !callable {
		return nil, false
	}
	return thenableAdapter{obj: obj}, true
}

// bindPromise installs a global Promise constructor backed by
// jsPromise, plus Promise.resolve/reject/all. Both user code and
// toolProxies route through this same constructor so `await` works
// uniformly against either source.
func bindPromise(vm *goja.Runtime, loop *workerloop.Loop) {
	ctor := func(call goja.ConstructorCall) *goja.Object {
		executor, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("Promise constructor requires an executor function"))
		}
		p := newJSPromise(vm, loop)
		obj := wrapPromise(vm, loop, p)

		resolveFn := vm.ToValue(func(c goja.FunctionCall) goja.Value {
			p.resolve(c.Argument(0))
			return goja.Undefined()
		})
		rejectFn := vm.ToValue(func(c goja.FunctionCall) goja.Value {
			p.reject(c.Argument(0).Export())
			return goja.Undefined()
		})
		if _, err := executor(goja.Undefined(), resolveFn, rejectFn); err != nil {
			p.reject(err.Error())
		}
		return obj
	}

	ctorVal := vm.ToValue(ctor).(*goja.Object)
	_ = ctorVal.Set("resolve", func(call goja.FunctionCall) goja.Value {
		p := newJSPromise(vm, loop)
		p.resolve(call.Argument(0))
		return vm.ToValue(wrapPromise(vm, loop, p))
	})
	_ = ctorVal.Set("reject", func(call goja.FunctionCall) goja.Value {
		p := newJSPromise(vm, loop)
		p.reject(call.Argument(0).Export())
		return vm.ToValue(wrapPromise(vm, loop, p))
	})
	_ = ctorVal.Set("all", func(call goja.FunctionCall) goja.Value {
		return promiseAll(vm, loop, call.Argument(0))
	})
	_ = vm.Set("Promise", ctorVal)
}

// wrapPromise builds the JS-visible object exposing then/catch/finally
// for p, matching the standard Promise.prototype shape closely enough
// for await and chained handlers to work.
func wrapPromise(vm *goja.Runtime, loop *workerloop.Loop, p *jsPromise) *goja.Object {
	obj := vm.NewObject()

	_ = obj.Set("then", func(call goja.FunctionCall) goja.Value {
		onFulfilled, _ := goja.AssertFunction(call.Argument(0))
		onRejected, _ := goja.AssertFunction(call.Argument(1))

		next := newJSPromise(vm, loop)
		p.then(
			func(v any) {
				if onFulfilled == nil {
					next.resolve(v)
					return
				}
				res, err := onFulfilled(goja.Undefined(), vm.ToValue(v))
				if err != nil {
					next.reject(extractJSErrorValue(err))
					return
				}
				next.resolve(res.Export())
			},
			func(v any) {
				if onRejected == nil {
					next.reject(v)
					return
				}
				res, err := onRejected(goja.Undefined(), vm.ToValue(v))
				if err != nil {
					next.reject(extractJSErrorValue(err))
					return
				}
				next.resolve(res.Export())
			},
		)
		return vm.ToValue(wrapPromise(vm, loop, next))
	})

	_ = obj.Set("catch", func(call goja.FunctionCall) goja.Value {
		thenFn, _ := goja.AssertFunction(obj.Get("then"))
		v, _ := thenFn(obj, goja.Undefined(), call.Argument(0))
		return v
	})

	_ = obj.Set("finally", func(call goja.FunctionCall) goja.Value {
		onFinally, _ := goja.AssertFunction(call.Argument(0))
		wrapped := func(call goja.FunctionCall) goja.Value {
			if onFinally != nil {
				_, _ = onFinally(goja.Undefined())
			}
			return call.Argument(0)
		}
		thenFn, _ := goja.AssertFunction(obj.Get("then"))
		v, _ := thenFn(obj, vm.ToValue(wrapped), vm.ToValue(wrapped))
		return v
	})

	return obj
}

func extractJSErrorValue(err error) any {
	if ex, ok := err.(*goja.Exception); ok {
		return ex.Value().Export()
	}
	return err.Error()
}

// promiseAll resolves once every element of the arrayLike argument has
// settled, collecting values in order; it rejects with the first
// rejection reason encountered.
func promiseAll(vm *goja.Runtime, loop *workerloop.Loop, arrayLike goja.Value) goja.Value {
	result := newJSPromise(vm, loop)

	obj, ok := arrayLike.(*goja.Object)
	if !ok {
		result.reject("Promise.all requires an array")
		return vm.ToValue(wrapPromise(vm, loop, result))
	}
	length := int(obj.Get("length").ToInteger())
	values := make([]any, length)

	if length == 0 {
		result.resolve(vm.NewArray())
		return vm.ToValue(wrapPromise(vm, loop, result))
	}

	var mu sync.Mutex
	remaining := length
	done := false

	for i := 0; i < length; i++ {
		i := i
		elem := obj.Get(strconv.Itoa(i))
		p := newJSPromise(vm, loop)
		p.resolve(elem)
		p.then(
			func(v any) {
				mu.Lock()
				defer mu.Unlock()
				if done {
					return
				}
				values[i] = v
				remaining--
				if remaining == 0 {
					done = true
					result.resolve(vm.NewArray(values...))
				}
			},
			func(v any) {
				mu.Lock()
				defer mu.Unlock()
				if done {
					return
				}
				done = true
				result.reject(v)
			},
		)
	}

	return vm.ToValue(wrapPromise(vm, loop, result))
}

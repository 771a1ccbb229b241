package worker

import (
	"context"
	"testing"

	"github.com/codeharbor/sandboxexec/internal/workerloop"
	"github.com/dop251/goja"
	"github.com/stretchr/testify/require"
)

func newTestVM(t *testing.T) (*goja.Runtime, *workerloop.Loop) {
	t.Helper()
	loop := workerloop.NewLoop()
	vm := goja.New()
	bindPromise(vm, loop)
	return vm, loop
}

func pumpUntilSet(t *testing.T, vm *goja.Runtime, loop *workerloop.Loop, global string) {
	t.Helper()
	err := loop.RunUntil(context.Background(), func() bool {
		v := vm.Get(global)
		return v != nil && !goja.IsUndefined(v)
	})
	require.NoError(t, err)
}

func TestPromise_ResolvesSynchronousValue(t *testing.T) {
	vm, loop := newTestVM(t)
	_, err := vm.RunString(`
		var result;
		new Promise(function(resolve){ resolve(42); }).then(function(v){ result = v + 1; });
	`)
	require.NoError(t, err)

	pumpUntilSet(t, vm, loop, "result")
	require.EqualValues(t, 43, vm.Get("result").Export())
}

func TestPromise_RejectRoutesToCatch(t *testing.T) {
	vm, loop := newTestVM(t)
	_, err := vm.RunString(`
		var caught;
		new Promise(function(_, reject){ reject("boom"); }).catch(function(e){ caught = e; });
	`)
	require.NoError(t, err)

	pumpUntilSet(t, vm, loop, "caught")
	require.Equal(t, "boom", vm.Get("caught").Export())
}

func TestPromise_ChainsThenCallbacks(t *testing.T) {
	vm, loop := newTestVM(t)
	_, err := vm.RunString(`
		var result;
		Promise.resolve(1)
			.then(function(v){ return v + 1; })
			.then(function(v){ return v * 10; })
			.then(function(v){ result = v; });
	`)
	require.NoError(t, err)

	pumpUntilSet(t, vm, loop, "result")
	require.EqualValues(t, 20, vm.Get("result").Export())
}

func TestPromise_AllWaitsForEveryElement(t *testing.T) {
	vm, loop := newTestVM(t)
	_, err := vm.RunString(`
		var result;
		Promise.all([
			Promise.resolve(1),
			2,
			new Promise(function(resolve){ resolve(3); }),
		]).then(function(v){ result = v; });
	`)
	require.NoError(t, err)

	pumpUntilSet(t, vm, loop, "result")
	arr, ok := vm.Get("result").Export().([]interface{})
	require.True(t, ok)
	require.Len(t, arr, 3)
	require.EqualValues(t, 1, arr[0])
	require.EqualValues(t, 2, arr[1])
	require.EqualValues(t, 3, arr[2])
}

func TestPromise_AwaitAgainstCustomPromise(t *testing.T) {
	vm, loop := newTestVM(t)
	_, err := vm.RunString(`
		var result;
		(async function(){
			var v = await new Promise(function(resolve){ resolve(7); });
			result = v * 2;
		})();
	`)
	require.NoError(t, err)

	pumpUntilSet(t, vm, loop, "result")
	require.EqualValues(t, 14, vm.Get("result").Export())
}

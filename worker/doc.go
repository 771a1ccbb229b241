// Package worker implements the sandboxed child process: a goja.Runtime
// running untrusted JavaScript, bound to setTimeout/queueMicrotask via
// internal/workerloop, with a Promise constructor backed by the same
// loop (rather than goja's native job queue) so RPC tool proxies can
// emit invoke frames over the rpcbridge stdio channel and resolve the
// promise they returned when the matching reply arrives, all on one
// goroutine.
//
// This is the "worker runtime" piece of REDESIGN FLAG RF-1: rather than
// a second in-process goja.Runtime, the worker is this same binary
// re-invoked as a subprocess (see the sandbox package's dispatch
// helper) with an empty environment. No OS-level capabilities are
// dropped: the "no filesystem write, no network, no subprocess spawn"
// guarantee rests on which globals this runtime binds.
package worker

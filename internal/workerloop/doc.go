// Package workerloop implements a deliberately minimal job-queue event
// loop for the sandboxed worker process: timers and microtasks only,
// plus a thread-safe external-event channel used to hand goja Promise
// resolution callbacks from the stdin-reading goroutine back onto the
// loop's single owning goroutine.
//
// This is a relative of the teacher pack's eventloop.Loop /
// goja-eventloop.Adapter, simplified because the worker is
// single-tenant and short-lived and needs none of eventloop.Loop's
// registered-file-descriptor ("Maximum Performance" epoll/kqueue)
// machinery — only setTimeout/queueMicrotask and one duplex stdio
// channel.
package workerloop

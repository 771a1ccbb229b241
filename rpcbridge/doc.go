// Package rpcbridge implements the host-worker wire protocol described
// in the spec's "Worker RPC Bridge" section: newline-delimited JSON
// envelopes over a duplex stdio channel.
//
// CallId correlation itself (resolving replies out of order, mirroring
// goja-grpc/client.go's executeUnaryRPC and eventloop.Loop's Promisify
// registry) lives with whichever side actually waits on a reply:
// worker/proxy.go's pending-call map settles a jsPromise per callId as
// result/error frames arrive, while the host dispatches each invoke
// concurrently and replies fire-and-forget (sandbox/spawn.go), never
// blocking on a registry of its own. The spec's "done" message kind is
// folded into the fixed __SANDBOX_RESULT__: marker line the worker
// writes to stdout (see model.ResultMarker, worker/run.go) rather than
// framed as a separate Envelope.
package rpcbridge

// Package security implements admission control over a code snippet and
// its context object, before either is allowed anywhere near the
// Resource Limiter or the Result Cache.
//
// The approach — a static regex scan over source text plus a BFS over
// the context mapping's keys — mirrors how the teacher pack's goja
// embeddings (goja-grpc) must already reason about JS property access:
// __proto__, .constructor.prototype and friends are exactly the
// vectors a goja-hosted object graph has to defend against, so the
// dangerous-pattern set here is not an invention, it is the same set
// any goja integrator runs into.
package security

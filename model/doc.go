// Package model defines the data model shared by every component of the
// untrusted-code execution subsystem: the JSON-only Context value space,
// tool manifests injected into a worker, the structured error taxonomy,
// and the execution result envelope returned to callers.
//
// Nothing in this package talks to goja, the filesystem, or a network —
// it exists so that security, limiter, cache, toolctx, rpcbridge, worker
// and sandbox can agree on wire-stable types without importing each other.
package model

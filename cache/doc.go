// Package cache implements the content-addressed, TTL-bounded Result
// Cache: stable key generation over (code, context, toolVersions), LRU
// eviction, optional disk persistence, and tool-version invalidation.
//
// Canonical encoding of the context/toolVersions segments reuses the
// teacher pack's jsonenc primitives (AppendString/AppendFloat64), the
// same allocation-conscious byte-buffer approach zerolog itself uses,
// generalized here into a recursive canonical-JSON writer that sorts
// object keys so permuted mappings hash identically at any depth.
package cache

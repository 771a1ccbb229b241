// Package toolctx builds the typed, serializable ToolManifest injected
// into a sandboxed execution: tool-name validation mirroring the
// Security Validator's prototype-pollution defenses, a descriptor cache
// keyed by (server, tool), and semantic tool selection behind a
// VectorSearchProvider interface that the concrete localprovider and
// weaviateprovider packages satisfy.
package toolctx

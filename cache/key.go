package cache

import (
	"hash/fnv"

	"github.com/codeharbor/sandboxexec/model"
)

// Key is the three-segment cache key described in spec §4.4:
//
//	H(code) || "_" || H(canonicalize(context)) || "_" || H(canonicalize(toolVersions))
//
// The segments are kept apart (not concatenated into an opaque hash),
// so a change in one dimension is visible in its own segment alone.
// InvalidateByToolVersion does not read these segments; it matches on
// each stored Entry's ToolVersions map.
type Key struct {
	CodeHash        string
	ContextHash     string
	ToolVersionHash string
}

// String renders the key in its canonical "<code>_<context>_<tools>"
// form, the literal string used as the cache's map key.
func (k Key) String() string {
	return k.CodeHash + "_" + k.ContextHash + "_" + k.ToolVersionHash
}

// hashBytes renders a stable, non-cryptographic FNV-1a 128-bit digest
// of b as lowercase hex. FNV-1a is used instead of a cryptographic hash
// because the cache key has no adversarial-collision requirement (the
// Security Validator already ran before this code is reached) and
// because no pack example imports a dedicated non-cryptographic hash
// library (xxhash, murmur, cityhash) — hash/fnv from the standard
// library is the narrowly-scoped, justified choice here (see
// DESIGN.md).
func hashBytes(b []byte) string {
	h := fnv.New128a()
	_, _ = h.Write(b)
	sum := h.Sum(nil)
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(sum)*2)
	for i, c := range sum {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out)
}

// GenerateKey computes the cache key for one execution. It is
// O(len(code)+size(context)+size(toolVersions)) and allocates one small
// scratch buffer per canonicalized segment, keeping it well under the spec's 5ms
// budget for typical (50-key context, 100-term expression) inputs.
func GenerateKey(code string, context model.Context, toolVersions map[string]string) Key {
	return Key{
		CodeHash:        hashBytes([]byte(code)),
		ContextHash:     hashBytes(canonicalize(nil, context)),
		ToolVersionHash: hashBytes(canonicalize(nil, toolVersions)),
	}
}

package cache

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/codeharbor/sandboxexec/model"
	"github.com/joeycumines/go-utilpkg/jsonenc"
)

// canonicalize appends a canonical JSON encoding of v to dst: object
// keys are emitted in sorted order at every nesting depth, array order
// is preserved, and an absent key is simply not emitted while an
// explicit null is emitted as `"key":null`, so the two produce different
// cache keys (undefined has already collapsed to null upstream, by the
// time a JSON value reaches this function).
func canonicalize(dst []byte, v any) []byte {
	switch t := v.(type) {
	case nil:
		return append(dst, "null"...)
	case bool:
		if t {
			return append(dst, "true"...)
		}
		return append(dst, "false"...)
	case string:
		return jsonenc.AppendString(dst, t)
	case float64:
		return jsonenc.AppendFloat64(dst, t)
	case float32:
		return jsonenc.AppendFloat32(dst, t)
	case int:
		return strconv.AppendInt(dst, int64(t), 10)
	case int32:
		return strconv.AppendInt(dst, int64(t), 10)
	case int64:
		return strconv.AppendInt(dst, t, 10)
	case uint64:
		return strconv.AppendUint(dst, t, 10)
	case []any:
		dst = append(dst, '[')
		for i, elem := range t {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = canonicalize(dst, elem)
		}
		return append(dst, ']')
	case map[string]any:
		return canonicalizeObject(dst, t)
	case model.Context:
		return canonicalizeObject(dst, map[string]any(t))
	case map[string]string:
		obj := make(map[string]any, len(t))
		for k, v := range t {
			obj[k] = v
		}
		return canonicalizeObject(dst, obj)
	default:
		// Reached only for values that bypassed the Security
		// Validator's IsJSONValue check (e.g. toolVersions entries
		// supplied directly by the host); render their fmt form so key
		// generation never panics.
		return jsonenc.AppendString(dst, fmt.Sprintf("%v", t))
	}
}

func canonicalizeObject(dst []byte, obj map[string]any) []byte {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dst = append(dst, '{')
	for i, k := range keys {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = jsonenc.AppendString(dst, k)
		dst = append(dst, ':')
		dst = canonicalize(dst, obj[k])
	}
	return append(dst, '}')
}

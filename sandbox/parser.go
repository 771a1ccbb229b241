package sandbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codeharbor/sandboxexec/model"
	"github.com/codeharbor/sandboxexec/sanitize"
)

// userErrorPrefix marks a parse-level failure (as opposed to anything
// the worker itself reported) so parseError's classification table can
// route it the same way a `begins with USER_ERROR` raw message would.
const userErrorPrefix = "USER_ERROR"

// parseOutput implements the Result Parser's first stage: locate the
// `__SANDBOX_RESULT__:` marker line among a worker's captured stdout
// and decode its JSON payload. A missing marker is reported as a
// USER_ERROR-prefixed error, per spec §4.6.3 "missing marker -> PARSE_ERROR
// mapped to RuntimeError" (the classification happens one layer up, in
// parseError).
func parseOutput(stdout []byte) (model.WorkerOutput, error) {
	marker := []byte(model.ResultMarker)
	for _, line := range bytes.Split(stdout, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if !bytes.HasPrefix(line, marker) {
			continue
		}
		var out model.WorkerOutput
		if err := json.Unmarshal(line[len(marker):], &out); err != nil {
			return model.WorkerOutput{}, fmt.Errorf("%s: malformed result marker payload: %v", userErrorPrefix, err)
		}
		return out, nil
	}
	return model.WorkerOutput{}, fmt.Errorf("%s: no result marker found in worker output", userErrorPrefix)
}

// errorContext carries the values parseError's message templates need
// (the configured timeout/memory limit), per spec §4.6.3.
type errorContext struct {
	TimeoutMs     int64
	MemoryLimitMb int64
}

var (
	memoryPhrases     = []string{"out of memory", "heap limit", "max-old-space-size"}
	permissionPhrases = []string{"permission denied", "capability", "requires access", "requires-access", "not permitted"}
	syntaxPhrases     = []string{"unexpected token", "unexpected end of input", "syntaxerror"}
)

// parseError implements the Result Parser's classification table: it
// maps a raw error message (and, where available, its stack) to the
// StructuredError taxonomy, applying the Path Sanitizer to every
// surfaced string. Rules are evaluated in the table's declared order;
// the first match wins.
func parseError(raw, stack string, ectx errorContext, sanitizer *sanitize.Sanitizer) *model.StructuredError {
	lower := strings.ToLower(raw)

	switch {
	case strings.Contains(strings.ToUpper(raw), "TIMEOUT"):
		return &model.StructuredError{
			Type:    model.ErrorTypeTimeout,
			Message: fmt.Sprintf("Execution exceeded timeout of %dms", ectx.TimeoutMs),
		}

	case containsAny(lower, memoryPhrases):
		return &model.StructuredError{
			Type:    model.ErrorTypeMemory,
			Message: fmt.Sprintf("Memory limit of %dMB exceeded", ectx.MemoryLimitMb),
		}

	case containsAny(lower, permissionPhrases):
		return &model.StructuredError{
			Type:    model.ErrorTypePermission,
			Message: sanitizer.Sanitize(raw),
			Stack:   sanitizer.SanitizeStackTrace(stack),
		}

	case strings.HasPrefix(raw, userErrorPrefix):
		inner := strings.TrimSpace(strings.TrimPrefix(raw, userErrorPrefix+":"))
		errType := model.ErrorTypeRuntime
		if looksSyntactic(inner) {
			errType = model.ErrorTypeSyntax
		}
		return &model.StructuredError{
			Type:    errType,
			Message: sanitizer.Sanitize(inner),
			Stack:   sanitizer.SanitizeStackTrace(stack),
		}

	case looksSyntactic(lower):
		return &model.StructuredError{
			Type:    model.ErrorTypeSyntax,
			Message: sanitizer.Sanitize(raw),
			Stack:   sanitizer.SanitizeStackTrace(stack),
		}

	default:
		return reclassifyRuntimeError(raw, stack, sanitizer)
	}
}

// reclassifyRuntimeError is the "secondary classifier" the spec
// requires: a RuntimeError-shaped message is re-examined once more for
// permission/syntax phrasing that the primary pass's ordering didn't
// happen to catch (e.g. a permission phrase embedded mid-sentence in a
// longer user-thrown message).
func reclassifyRuntimeError(raw, stack string, sanitizer *sanitize.Sanitizer) *model.StructuredError {
	lower := strings.ToLower(raw)
	errType := model.ErrorTypeRuntime
	switch {
	case containsAny(lower, permissionPhrases):
		errType = model.ErrorTypePermission
	case looksSyntactic(lower):
		errType = model.ErrorTypeSyntax
	}
	return &model.StructuredError{
		Type:    errType,
		Message: sanitizer.Sanitize(raw),
		Stack:   sanitizer.SanitizeStackTrace(stack),
	}
}

func looksSyntactic(s string) bool {
	return containsAny(strings.ToLower(s), syntaxPhrases)
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

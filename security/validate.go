package security

import (
	"fmt"

	"github.com/codeharbor/sandboxexec/model"
)

// Validate runs admission control on code and context, in the order
// mandated by spec §4.2: code length, then dangerous regexes in
// declared order, then context keys (BFS), then context depth, then
// context value types. The first violation short-circuits with a full
// *model.StructuredError describing it; a nil return means the input
// is admitted.
//
// Validate never mutates code or context and is safe for concurrent
// use.
func (v *Validator) Validate(code string, ctx model.Context) *model.StructuredError {
	if v.codeEnabled {
		if err := v.validateCode(code); err != nil {
			return err
		}
	}
	if v.contextEnabled {
		if err := v.validateContext(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) validateCode(code string) *model.StructuredError {
	if len(code) > v.maxCodeLength {
		return model.NewSecurityError(
			"CODE_TOO_LONG",
			fmt.Sprintf("len(code) > %d", v.maxCodeLength),
			SeverityLow,
			fmt.Sprintf("code length %d exceeds maximum of %d bytes", len(code), v.maxCodeLength),
		)
	}
	for _, rule := range v.patterns {
		if rule.Pattern.MatchString(code) {
			return model.NewSecurityError(
				rule.Type,
				rule.Pattern.String(),
				rule.Severity,
				fmt.Sprintf("code contains disallowed construct: %s", rule.Type),
			)
		}
	}
	return nil
}

func (v *Validator) validateContext(ctx model.Context) *model.StructuredError {
	if ctx == nil {
		return nil
	}

	var keyErr *model.StructuredError
	_ = model.WalkKeys(map[string]any(ctx), func(key string, depth int) error {
		if model.IsDangerousKey(key) {
			keyErr = model.NewSecurityError(
				"DANGEROUS_KEY",
				key,
				SeverityHigh,
				fmt.Sprintf("context key %q is reserved (prototype/constructor traversal)", key),
			)
			return keyErr
		}
		if err := model.ValidateIdentifier(key); err != nil {
			keyErr = model.NewSecurityError(
				"INVALID_IDENTIFIER",
				key,
				SeverityMed,
				fmt.Sprintf("context key %q is not a valid identifier", key),
			)
			return keyErr
		}
		return nil
	})
	if keyErr != nil {
		return keyErr
	}

	if depth := model.Depth(map[string]any(ctx)); depth > model.MaxContextDepth {
		return model.NewSecurityError(
			"CONTEXT_TOO_DEEP",
			fmt.Sprintf("depth=%d", depth),
			SeverityMed,
			fmt.Sprintf("context nesting depth %d exceeds maximum of %d", depth, model.MaxContextDepth),
		)
	}

	if !model.IsJSONValue(map[string]any(ctx)) {
		return model.NewSecurityError(
			"NON_JSON_VALUE",
			"",
			SeverityHigh,
			"context contains a value that is not JSON-serializable (e.g. a function or opaque handle)",
		)
	}

	return nil
}

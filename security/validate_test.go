package security_test

import (
	"testing"

	"github.com/codeharbor/sandboxexec/model"
	"github.com/codeharbor/sandboxexec/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AllowsBenignCode(t *testing.T) {
	v := security.New()
	err := v.Validate("return 1+1", nil)
	assert.Nil(t, err)
}

func TestValidate_DangerousPatterns_PositiveAndNearMiss(t *testing.T) {
	cases := []struct {
		name      string
		code      string
		wantMatch bool
	}{
		{"eval direct call", `eval("1+1")`, true},
		{"evaluate is not eval", `evaluate("1+1")`, false},
		{"new Function ctor", `new Function("return 1")`, true},
		{"Function as constructor call", `Function("return 1")()`, true},
		{"functionCall is not Function ctor", `functionCall("x")`, false},
		{"proto dot access", `x.__proto__.polluted = true`, true},
		{"proto computed string access", `x['__proto__']['polluted'] = true`, true},
		{"prototypeName identifier is not __proto__", `x.prototypeName`, false},
		{"constructor prototype chain", `x.constructor.prototype.polluted = true`, true},
		{"constructorName is not constructor chain", `x.constructorName`, false},
		{"defineGetter", `x.__defineGetter__('y', fn)`, true},
		{"defineSetter", `x.__defineSetter__('y', fn)`, true},
		{"dynamic import", `import('./evil.js')`, true},
		{"import statement-like text without parens", `importCount = 1`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := security.New()
			err := v.Validate(tc.code, nil)
			if tc.wantMatch {
				require.NotNil(t, err)
				assert.Equal(t, model.ErrorTypeSecurity, err.Type)
			} else {
				assert.Nil(t, err)
			}
		})
	}
}

func TestValidate_CodeTooLong(t *testing.T) {
	v := security.New(security.WithMaxCodeLength(10))
	err := v.Validate("012345678901234", nil)
	require.NotNil(t, err)
	assert.Equal(t, "CODE_TOO_LONG", err.ViolationType)
}

func TestValidate_RejectsDangerousContextKey(t *testing.T) {
	v := security.New()
	ctx := model.Context{
		"__proto__": map[string]any{"p": true},
		"userId":    float64(1),
	}
	err := v.Validate("return userId", ctx)
	require.NotNil(t, err)
	assert.Contains(t, err.Pattern, "__proto__")
}

func TestValidate_RejectsInvalidIdentifierKey(t *testing.T) {
	v := security.New()
	ctx := model.Context{"1bad": float64(1)}
	err := v.Validate("return 1", ctx)
	require.NotNil(t, err)
	assert.Equal(t, "INVALID_IDENTIFIER", err.ViolationType)
}

func TestValidate_RejectsTooDeepContext(t *testing.T) {
	v := security.New()
	var leaf any = float64(1)
	for i := 0; i < model.MaxContextDepth+2; i++ {
		leaf = map[string]any{"n": leaf}
	}
	ctx := model.Context{"root": leaf}
	err := v.Validate("return 1", ctx)
	require.NotNil(t, err)
	assert.Equal(t, "CONTEXT_TOO_DEEP", err.ViolationType)
}

func TestValidate_RejectsNonJSONValue(t *testing.T) {
	v := security.New()
	ctx := model.Context{"fn": func() {}}
	err := v.Validate("return 1", ctx)
	require.NotNil(t, err)
	assert.Equal(t, "NON_JSON_VALUE", err.ViolationType)
}

func TestValidate_CustomPatterns(t *testing.T) {
	v := security.New(security.WithCustomPatterns(security.PatternRule{
		Type:     "FORBIDDEN_WORD",
		Pattern:  mustCompile(`\bforbidden\b`),
		Severity: security.SeverityHigh,
	}))
	err := v.Validate("let x = forbidden", nil)
	require.NotNil(t, err)
	assert.Equal(t, "FORBIDDEN_WORD", err.ViolationType)
}

func TestValidate_DisabledChecksSkip(t *testing.T) {
	v := security.New(security.WithCodeValidationDisabled(), security.WithContextSanitizationDisabled())
	err := v.Validate(`eval("1")`, model.Context{"__proto__": float64(1)})
	assert.Nil(t, err)
}

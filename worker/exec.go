package worker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dop251/goja"
)

// topLevelReturnPattern is a best-effort detector for an explicit
// top-level `return` in a snippet, used only to decide how to wrap the
// snippet, never as a security boundary.
var topLevelReturnPattern = regexp.MustCompile(`(^|[;{}\n])\s*return\b`)

// runCode starts executing code and returns the value of the Promise
// it completes with (code is always wrapped in an async IIFE, so
// `await` is valid at the snippet's top level, matching spec example
// `await fetch(...)`). The returned value is whatever wrapPromise (or
// goja's own async-function machinery) produces; callers chain onto it
// with asThenable before treating it as final.
//
// A snippet with no explicit `return` is first tried as a single
// expression, so its own value becomes the result without requiring
// the author to write `return` (the REPL-style convenience): `await
// tools.echo.say(x)` alone is equivalent to `return await
// tools.echo.say(x)`. If that parse fails — the snippet is a statement
// sequence, e.g. a loop with no trailing bare expression — it is
// retried as a plain statement block, whose completion is undefined
// unless it returns one explicitly.
func runCode(vm *goja.Runtime, code string) (goja.Value, error) {
	if !topLevelReturnPattern.MatchString(code) {
		if v, err := vm.RunString(wrapAsExpression(code)); err == nil {
			return v, nil
		} else if !looksLikeSyntaxError(err) {
			return nil, err
		}
	}
	return vm.RunString(wrapAsStatements(code))
}

func wrapAsExpression(code string) string {
	return fmt.Sprintf("(async function(){\nreturn (\n%s\n);\n})()", code)
}

func wrapAsStatements(code string) string {
	return fmt.Sprintf("(async function(){\n%s\n})()", code)
}

func looksLikeSyntaxError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "syntaxerror") || strings.Contains(msg, "unexpected")
}

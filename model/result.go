package model

// ExecutionResult is the single JSON value returned by one execute()
// call. Exactly one of Result / Error is populated, enforced by the
// constructors below rather than left to caller discipline.
type ExecutionResult struct {
	Success bool `json:"success"`
	// Result is intentionally not `omitempty`: a legitimate successful
	// result of 0, false, or null must still be marshaled, not dropped
	// as if it were absent.
	Result          any              `json:"result"`
	Error           *StructuredError `json:"error,omitempty"`
	ExecutionTimeMs int64            `json:"executionTimeMs"`
}

// Ok constructs a successful ExecutionResult.
func Ok(result any, executionTimeMs int64) ExecutionResult {
	return ExecutionResult{Success: true, Result: result, ExecutionTimeMs: executionTimeMs}
}

// Fail constructs a failed ExecutionResult.
func Fail(err *StructuredError, executionTimeMs int64) ExecutionResult {
	return ExecutionResult{Success: false, Error: err, ExecutionTimeMs: executionTimeMs}
}

// WorkerOutput is the JSON payload carried by the `__SANDBOX_RESULT__:`
// marker line a worker writes to stdout, per spec §4.6.3. It is the
// on-the-wire shape; the Result Parser converts it into an
// ExecutionResult (stamping ExecutionTimeMs, which the worker itself
// does not know).
type WorkerOutput struct {
	Success bool `json:"success"`
	// Result is intentionally not `omitempty`, for the same reason as
	// ExecutionResult.Result above: a worker returning 0/false/null on
	// success must still carry that value across the marker line.
	Result any    `json:"result"`
	Error  string `json:"error,omitempty"`
	// ErrorStack, when present, is the raw (unsanitized) stack trace
	// from the worker's runtime; the parser sanitizes it before
	// attaching it to a StructuredError.
	ErrorStack string `json:"errorStack,omitempty"`
}

// ResultMarker is the fixed line prefix that delimits a worker's final
// JSON result on stdout.
const ResultMarker = "__SANDBOX_RESULT__:"

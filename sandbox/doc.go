// Package sandbox is the public entry point: Executor.Execute runs one
// untrusted code snippet end to end — validate, look up the result
// cache, acquire a limiter token, spawn an isolated worker subprocess,
// bridge its tool invocations back to a host-provided ToolInvoker, and
// parse its result into a model.ExecutionResult.
//
// Config is built with functional options (sandbox.Option), the same
// idiom goja-grpc uses for its Module construction: an Option mutates a
// private options struct and may fail validation; NewExecutor resolves
// every option and rejects an invalid option value up front rather
// than failing confusingly on the first Execute call.
package sandbox

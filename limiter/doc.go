// Package limiter implements the process-wide Resource Limiter: a
// singleton admission gate over two global quotas (concurrent
// executions, total allocated memory) plus an optional host
// memory-pressure probe.
//
// It borrows the teacher pack's catrate idiom — atomic counters guarded
// by a narrow mutex, a package-level instance with an explicit
// reset/init lifecycle for test harnesses, an injectable time source —
// without importing catrate itself, since catrate solves sliding-window
// rate limiting per category, a different problem from instance-wide
// admission control.
package limiter

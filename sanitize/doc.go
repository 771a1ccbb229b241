// Package sanitize strips host-absolute filesystem paths out of error
// messages and stack traces before they cross the execute() boundary.
// It is pure and side-effect-free, the way eventloop's leaf helpers
// (psquare.go, sizeof.go) in the teacher pack have no dependencies
// beyond the standard library.
package sanitize

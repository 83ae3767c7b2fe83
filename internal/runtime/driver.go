// Package runtime executes a single task's execution unit against a staged
// input artifact and captures its standard output as the stage result.
//
// # Drivers
//
// A Driver knows how to start one isolated unit, wait for it, and tear it
// down again:
//   - DockerDriver: runs a container image with the artifact bind-mounted
//     read-only at the well-known input path (default /data/input.txt).
//   - ProcessDriver: runs a local command; used for development and for
//     hosts without a container engine.
//   - DriverFunc / Transform: in-process substitutes for tests.
//
// # Failures
//
// Drivers never return Go errors. Every outcome is a StageResult that is
// either a success carrying trimmed UTF-8 text or a *Failure tagged with one
// of PlatformError, ExecutionError, or DecodeError.
//
// Drivers perform no retries and add no timeouts of their own; cancellation
// of the caller's context is the only way to abort a running unit.
package runtime

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/orchestratord/internal/registry"
)

// DefaultInputMount is where units expect to find their input artifact.
const DefaultInputMount = "/data/input.txt"

// FailureKind classifies why a stage did not produce output.
type FailureKind string

const (
	// PlatformError means the runtime environment is unreachable or misconfigured.
	PlatformError FailureKind = "platform_error"

	// ExecutionError means the unit failed to start or exited abnormally.
	ExecutionError FailureKind = "execution_error"

	// DecodeError means the unit's output is not valid UTF-8 text.
	DecodeError FailureKind = "decode_error"
)

// Failure is the error half of a StageResult.
type Failure struct {
	Kind FailureKind
	Err  error
}

// Error implements error.
func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

// Unwrap returns the underlying cause.
func (f *Failure) Unwrap() error {
	return f.Err
}

// StageResult is either Success(text) or Failure(reason).
type StageResult struct {
	Text    string
	Failure *Failure
}

// OK reports whether the stage succeeded.
func (r StageResult) OK() bool {
	return r.Failure == nil
}

// Success builds a successful result.
func Success(text string) StageResult {
	return StageResult{Text: text}
}

// Fail builds a failed result of the given kind.
func Fail(kind FailureKind, err error) StageResult {
	return StageResult{Failure: &Failure{Kind: kind, Err: err}}
}

// Failf builds a failed result with a formatted cause.
func Failf(kind FailureKind, format string, args ...interface{}) StageResult {
	return Fail(kind, fmt.Errorf(format, args...))
}

// Driver runs one execution unit against one staged input artifact.
type Driver interface {
	Execute(ctx context.Context, unit registry.ExecutionUnit, inputPath string) StageResult
}

// DriverFunc adapts a function to the Driver interface.
type DriverFunc func(ctx context.Context, unit registry.ExecutionUnit, inputPath string) StageResult

// Execute calls f.
func (f DriverFunc) Execute(ctx context.Context, unit registry.ExecutionUnit, inputPath string) StageResult {
	return f(ctx, unit, inputPath)
}

// decodeOutput validates raw stdout as UTF-8 and trims surrounding whitespace.
func decodeOutput(raw []byte) StageResult {
	if !utf8.Valid(raw) {
		return Failf(DecodeError, "output is not valid UTF-8 (%d bytes)", len(raw))
	}
	return Success(strings.TrimSpace(string(raw)))
}

// tail returns at most the last n bytes of s, trimmed, for error messages.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

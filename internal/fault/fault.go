// Package fault defines the typed error taxonomy shared across the tool
// surface. The taxonomy determines how a failure is handled: fatal at
// startup (ConfigError), correctable by the reasoning engine
// (ValidationError), retryable (TransportError), or surfaced verbatim
// because it reflects a judged or security-relevant outcome
// (SubmissionError, BuildError, PathEscapeError).
package fault

import (
	"errors"
	"fmt"
)

// ConfigError is a fatal startup error: missing credentials, a tool name
// collision, an unusable workspace root. It is never produced at tool time.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Reason
}

// Configf builds a ConfigError from a format string.
func Configf(format string, args ...any) error {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// IsConfig reports whether err is or wraps a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ValidationError means a tool call's input failed its schema. It is
// recoverable: the error text is fed back to the reasoning engine so it
// can retry with corrected input.
type ValidationError struct {
	Tool   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Tool == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid input for %s: %s", e.Tool, e.Reason)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TransportError wraps a network-level failure (dial, timeout, broken
// connection). Transport failures are retryable up to a bounded count;
// they are distinct from structured service rejections.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Transport wraps err as a TransportError for the named operation.
func Transport(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// SubmissionError is a structured rejection from the scoring service
// (HTTP 4xx/5xx with an error body). It reflects a judged outcome and is
// never retried automatically.
type SubmissionError struct {
	Kind    string // the service's "error" field, e.g. "Bad Request"
	Message string // the service's "message" field
}

func (e *SubmissionError) Error() string {
	if e.Message == "" {
		return "submission rejected: " + e.Kind
	}
	return fmt.Sprintf("submission rejected (%s): %s", e.Kind, e.Message)
}

// AsSubmission extracts a SubmissionError from err's chain.
func AsSubmission(err error) (*SubmissionError, bool) {
	var se *SubmissionError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// BuildError reports a failed toolchain invocation. StderrTail holds the
// last captured lines of combined output so the reasoning engine can adapt
// the generated source. ExitCode is -1 when no process was spawned, such
// as when the source failed the pre-build syntax gate.
type BuildError struct {
	ExitCode   int
	StderrTail string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed (exit %d)", e.ExitCode)
}

// AsBuild extracts a BuildError from err's chain.
func AsBuild(err error) (*BuildError, bool) {
	var be *BuildError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// PathEscapeError reports a file path that resolves outside the active
// workspace. It is fatal to the tool call and never retried.
type PathEscapeError struct {
	Path string
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("path escapes workspace: %s", e.Path)
}

// IsPathEscape reports whether err is or wraps a PathEscapeError.
func IsPathEscape(err error) bool {
	var pe *PathEscapeError
	return errors.As(err, &pe)
}

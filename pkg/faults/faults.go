// Package faults defines the error taxonomy shared by every subsystem and
// the structured, redacted form surfaced to callers.
package faults

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/baton/pkg/redact"
)

// Code classifies a failure. Every error crossing a package boundary carries
// exactly one code.
type Code string

// Failure codes.
const (
	// CodeValidation - input did not satisfy a schema or invariant. No retry.
	CodeValidation Code = "VALIDATION_FAILURE"

	// CodeSecurity - missing/expired auth, cross-tenant access, path
	// traversal, injection indicator. No retry, always audited.
	CodeSecurity Code = "SECURITY_VIOLATION"

	// CodeNotFound - missing agent, checkpoint, or unknown id.
	CodeNotFound Code = "NOT_FOUND"

	// CodeConflict - duplicate id, circular dependency. Caller fixes.
	CodeConflict Code = "CONFLICT"

	// CodeUpstream - provider or external store failure. Retryable per policy.
	CodeUpstream Code = "UPSTREAM_ERROR"

	// CodeTimeout - deadline exceeded. Counts as recoverable.
	CodeTimeout Code = "OPERATION_TIMEOUT"

	// CodeIntegrity - checksum mismatch or broken audit chain. Escalate.
	CodeIntegrity Code = "INTEGRITY_ERROR"

	// CodeInvariant - programmer error: audit mutation, sealed-registry write.
	CodeInvariant Code = "INVARIANT_VIOLATION"
)

// recoverableByCode holds the default recoverability per code.
var recoverableByCode = map[Code]bool{
	CodeUpstream: true,
	CodeTimeout:  true,
}

// Fault is the concrete error type for the taxonomy. Construct via New,
// Newf, or Wrap; match with errors.As or the Is helper.
type Fault struct {
	Code          Code
	Message       string
	CorrelationID string
	Recoverable   bool
	Details       map[string]any

	err error
}

// New creates a fault with a fresh correlation id and the code's default
// recoverability.
func New(code Code, message string) *Fault {
	return &Fault{
		Code:          code,
		Message:       message,
		CorrelationID: uuid.NewString(),
		Recoverable:   recoverableByCode[code],
	}
}

// Newf creates a fault with a formatted message.
func Newf(code Code, format string, args ...any) *Fault {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a fault that wraps an underlying error. The cause remains
// reachable through errors.Is/As but is excluded from the user-facing form.
func Wrap(code Code, message string, err error) *Fault {
	f := New(code, message)
	f.err = err
	return f
}

// NewTimeout creates an OPERATION_TIMEOUT fault carrying the elapsed time
// and the deadline that was exceeded.
func NewTimeout(op string, elapsed, deadline time.Duration) *Fault {
	f := Newf(CodeTimeout, "%s exceeded deadline %s after %s", op, deadline, elapsed.Round(time.Millisecond))
	f.Details = map[string]any{
		"elapsed_ms":  elapsed.Milliseconds(),
		"deadline_ms": deadline.Milliseconds(),
	}
	return f
}

// WithDetail attaches a key/value pair for diagnostics and returns the fault.
func (f *Fault) WithDetail(key string, value any) *Fault {
	if f.Details == nil {
		f.Details = make(map[string]any)
	}
	f.Details[key] = value
	return f
}

// WithRecoverable overrides the code's default recoverability.
func (f *Fault) WithRecoverable(recoverable bool) *Fault {
	f.Recoverable = recoverable
	return f
}

func (f *Fault) Error() string {
	if f.err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Message, f.err)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As chains.
func (f *Fault) Unwrap() error {
	return f.err
}

// UserFacing is the structured failure form returned to clients. Message is
// redacted; the wrapped cause is never included.
type UserFacing struct {
	Code          Code   `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id"`
	Recoverable   bool   `json:"recoverable"`
}

// UserFacing converts the fault to its client-safe form.
func (f *Fault) UserFacing() UserFacing {
	return UserFacing{
		Code:          f.Code,
		Message:       redact.String(f.Message),
		CorrelationID: f.CorrelationID,
		Recoverable:   f.Recoverable,
	}
}

// AsFault extracts a *Fault from err's chain, or nil.
func AsFault(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return nil
}

// CodeOf returns the code of err, or "" when err carries no fault.
func CodeOf(err error) Code {
	if f := AsFault(err); f != nil {
		return f.Code
	}
	return ""
}

// Is reports whether err carries a fault with the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// ToUserFacing converts any error to the structured client form. Errors
// outside the taxonomy are reported as non-recoverable upstream failures.
func ToUserFacing(err error) UserFacing {
	if f := AsFault(err); f != nil {
		return f.UserFacing()
	}
	return UserFacing{
		Code:          CodeUpstream,
		Message:       redact.Error(err),
		CorrelationID: uuid.NewString(),
		Recoverable:   false,
	}
}

package delta

import "github.com/aledsdavies/delta/internal/diag"

// Error is the structured diagnostic and host-error type returned by every
// compile/run call, an alias for the accumulator sink's own error type so
// callers never have to reach into internal/diag themselves.
type Error = diag.Error

// Diagnostic codes, re-exported at the root so callers can branch with
// IsCode(err, delta.CodeNameNotFound) instead of string matching.
const (
	CodeSyntaxError         = diag.CodeSyntaxError
	CodeParseErr            = diag.CodeParseErr
	CodeTypeMismatch        = diag.CodeTypeMismatch
	CodeNameNotFound        = diag.CodeNameNotFound
	CodeFunctionNotFound    = diag.CodeFunctionNotFound
	CodeTypeRedefinition    = diag.CodeTypeRedefinition
	CodeTypeNotFound        = diag.CodeTypeNotFound
	CodePropertyMissing     = diag.CodePropertyMissing
	CodePropertyDuplicated  = diag.CodePropertyDuplicated
	CodeFunctionNameTooLong = diag.CodeFunctionNameTooLong
	CodeFileErr             = diag.CodeFileErr
)

// NewError, WrapError and IsCode mirror internal/diag's New, Wrap and Is so a host package
// never needs its own import of internal/diag just to build an Error.
func NewError(code diag.Code, message string) *Error       { return diag.New(code, message) }
func WrapError(code diag.Code, message string, cause error) *Error { return diag.Wrap(code, message, cause) }
func IsCode(err error, code diag.Code) bool                { return diag.Is(err, code) }

package types

import (
	"errors"
	"strings"
)

// Error taxonomy shared by every component. Packages wrap these with
// fmt.Errorf("...: %w") so callers can match with errors.Is.
var (
	ErrAccessDenied            = errors.New("access denied")
	ErrInvalidStateTransition  = errors.New("invalid state transition")
	ErrNotFound                = errors.New("not found")
	ErrMissingDependentProfile = errors.New("account has no dependent profile to join as")
	ErrMediaTokenIssuance      = errors.New("media token issuance failed")
	ErrRateLimited             = errors.New("rate limit exceeded")
)

// FieldError describes one invalid field of a command.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError is returned for malformed command payloads.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, fields ...FieldError) *ValidationError {
	return &ValidationError{Err: err, Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		if e.Err != nil {
			return e.Err.Error()
		}
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Error)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return e.Err }

// AmbiguousDependent is the structured "selection needed" answer to a join
// by a guardian with several dependents and no child specified. It is an
// error value so it can travel the normal return path, but callers render it
// as a prompt rather than a failure.
type AmbiguousDependent struct {
	Dependents []*Dependent `json:"children"`
}

func (d *AmbiguousDependent) Error() string {
	return "dependent selection required"
}

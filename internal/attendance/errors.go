package attendance

import "github.com/pkg/errors"

// Error kinds returned by the attendance services. Callers match them with
// errors.Is; the wrapped message carries the detail.
var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("conflict")
	ErrSessionClosed = errors.New("session is not open")
	// ErrQRExpired covers both a stale and a wrong token.
	ErrQRExpired  = errors.New("check-in code is invalid or expired")
	ErrValidation = errors.New("validation failed")
)

// FieldError is used to indicate an error with a specific input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError reports malformed input.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

// NewValidationError wraps err with the offending fields.
func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return ErrValidation.Error()
	}
	return e.Err.Error()
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error { return e.Err }

package upload

import "errors"

var (
	ErrValidation      = errors.New("upload validation failed")
	ErrMalformed       = errors.New("malformed multipart body")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrInvalidMimeType = errors.New("file type is not allowed")
	ErrEmptyFile       = errors.New("file is empty")
	ErrUnauthenticated = errors.New("subject required")
	ErrForbidden       = errors.New("subject is not a member")
)

// ValidationError carries per-field failures. It matches ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error()
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, rule string) error {
	return &ValidationError{Fields: map[string]string{field: rule}}
}

// PartError names the part that broke a size or type limit.
type PartError struct {
	Part string
	Err  error
}

func (e *PartError) Error() string {
	return e.Part + ": " + e.Err.Error()
}

func (e *PartError) Unwrap() error {
	return e.Err
}

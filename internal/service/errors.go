package service

import "errors"

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrItemNotFound = errors.New("todo not found")
	ErrForbidden    = errors.New("forbidden")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

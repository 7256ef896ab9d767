package scheduling

import "errors"

// ErrInvalidRequest matches every *ValidationError.
var ErrInvalidRequest = errors.New("invalid request")

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

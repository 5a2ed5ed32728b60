package sale

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrWrongStep is returned by a transition that the current step does
	// not allow
	ErrWrongStep = errors.New("sale: operation not allowed at this step")
	// ErrNotEligible means the passenger rows do not allow a submission
	ErrNotEligible = errors.New("sale: passengers incomplete")
	// ErrSubmitInFlight rejects a second submit while one is pending
	ErrSubmitInFlight = errors.New("sale: submission already in progress")
	// ErrConfirmationRequired guards the destructive flight reset
	ErrConfirmationRequired = errors.New("sale: reset must be confirmed")
	// ErrNoSuchPassenger is returned for an out of range row index
	ErrNoSuchPassenger = errors.New("sale: no such passenger row")
)

// FieldError is one invalid input
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects input problems caught before any network call
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " " + f.Message
	}
	return fmt.Sprintf("sale: invalid input: %s", strings.Join(parts, "; "))
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

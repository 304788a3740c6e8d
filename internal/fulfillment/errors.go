package fulfillment

import "errors"

var (
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("fulfillment: not found")
	// ErrInvalidState occurs when an entity exists but its status does not
	// admit the requested step.
	ErrInvalidState = errors.New("fulfillment: invalid state transition")
	// ErrPrecondition indicates the entity is structurally valid but missing
	// data the step requires.
	ErrPrecondition = errors.New("fulfillment: precondition not met")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("fulfillment: invalid input")
)

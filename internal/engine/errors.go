package engine

import "errors"

// Engine errors. Handlers map these onto HTTP responses; within the engine
// they are matched with errors.Is.
var (
	// ErrInvalidState is returned when an operation is attempted outside
	// its valid attempt state (e.g. answering after finalize).
	ErrInvalidState = errors.New("operation not valid in current attempt state")

	// ErrNotFound is returned when an attempt or question reference does
	// not resolve or does not belong to the caller.
	ErrNotFound = errors.New("attempt or question not found")

	// ErrConfigurationDisabled is returned when the exam has the relevant
	// feature (anti-cheat, adaptive mode) switched off.
	ErrConfigurationDisabled = errors.New("feature disabled for this exam")

	// ErrValidation is returned for a submission whose shape does not
	// match the question's type.
	ErrValidation = errors.New("submission shape does not match question type")
)

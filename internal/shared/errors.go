package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or incomplete input.
	ErrValidation = errors.New("validation failed")
	// ErrBusinessRule indicates input that is well formed but breaks a posting rule.
	ErrBusinessRule = errors.New("business rule violation")
	// ErrConcurrencyTimeout indicates a row lock could not be acquired within the retry budget.
	ErrConcurrencyTimeout = errors.New("concurrency timeout")
	// ErrSequenceExhausted indicates an identifier serial range has no free values left.
	ErrSequenceExhausted = errors.New("sequence exhausted")
	// ErrDuplicateOperation indicates the operation was already performed.
	ErrDuplicateOperation = errors.New("duplicate operation")
	// ErrSystemDateNotSet indicates the System_Date parameter is missing or unparseable.
	ErrSystemDateNotSet = errors.New("system date not configured")
)

package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrTerminalState       = errors.New("job already in terminal state")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrMissingResult       = errors.New("completed job requires a result path")
	ErrMissingErrorMessage = errors.New("errored job requires an error message")
	ErrInvalidRating       = errors.New("rating must be 1, 2, or 3")
)

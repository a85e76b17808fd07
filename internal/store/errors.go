package store

import "errors"

var (
	// ErrNotFound is returned when a game or prediction does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a prediction for the same agent and game
	// already exists.
	ErrDuplicate = errors.New("duplicate prediction")
)

// Package sentinel holds dependency-level errors. Stores return these
// (optionally wrapped) so engines can translate them into domain errors
// exactly once.
package sentinel

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidState  = errors.New("invalid state")
	ErrUnavailable   = errors.New("unavailable")
)

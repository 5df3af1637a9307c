// Package apperr defines the error taxonomy shared by the engine, the asset store and the API.
package apperr

import "errors"

var (
	// ErrNotFound marks an unknown workspace, vertex or asset on a mutating call.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is the conflict raised when creating an id that is already taken.
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict marks a write based on a stale read (checksum mismatch).
	ErrConflict = errors.New("conflict")
	// ErrMissingLink means a vertex cannot be resolved to any workspace.
	ErrMissingLink = errors.New("vertex does not resolve to a workspace")
	// ErrInvalid marks malformed input (empty ids, unsafe file names, bad URLs).
	ErrInvalid = errors.New("invalid input")
)

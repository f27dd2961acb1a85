package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication guard errors
	ErrStoreUnavailable   = errors.New("credential store unavailable")
	ErrTrackerUnavailable = errors.New("attempt tracker unavailable")
)

package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	// ErrStoreUnavailable wraps every backing store failure.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrIndexConflict reports that the watched index key changed before commit.
	ErrIndexConflict = errors.New("concurrent index conflict")
)

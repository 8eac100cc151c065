package keys

import "errors"

// Sentinel kinds for key errors.
var (
	ErrInvalidKeyType = errors.New("invalid key type")
	ErrInvalidKey     = errors.New("invalid key")
)

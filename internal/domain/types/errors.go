package types

import "errors"

// ErrUnknownAction is returned for update actions other than increment/add.
var ErrUnknownAction = errors.New("unknown action")

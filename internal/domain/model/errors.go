package model

import "errors"

// ErrInvalidPath is returned when a bulk patch path does not match the route.
var ErrInvalidPath = errors.New("invalid patch path")

package types

import "errors"

// ErrDuplicate is returned by storage backends when a unique field
// (developer e-mail) is already taken.
var ErrDuplicate = errors.New("duplicate record")

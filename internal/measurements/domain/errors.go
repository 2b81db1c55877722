package measurements

import "errors"

// ErrNotFound indicates a missing measurement record.
var ErrNotFound = errors.New("measurement: not found")

package alarms

import "errors"

// ErrNotFound indicates the requested alarm does not exist.
var ErrNotFound = errors.New("alarms: not found")

package scheduler

import "errors"

var errPanic = errors.New("scheduled job panicked")

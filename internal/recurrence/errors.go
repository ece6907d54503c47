package recurrence

import "errors"

var (
	errInvalidWindow   = errors.New("recurrence: pre-warning window must satisfy 0 < min <= max")
	errWindowTooNarrow = errors.New("recurrence: pre-warning window is narrower than the poll interval")
)

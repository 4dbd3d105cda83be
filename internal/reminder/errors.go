package reminder

import "errors"

var (
	// ErrPermissionDenied means notification permission was never granted.
	ErrPermissionDenied = errors.New("notification permission denied")
	// ErrPlatformScheduling covers any other platform-level rejection.
	ErrPlatformScheduling = errors.New("platform scheduling failed")
	// ErrPersistence wraps key-value store read/write failures.
	ErrPersistence = errors.New("persistence failed")
	// ErrInvalidTrigger is a contract violation: bad hour/minute/weekday or kind.
	ErrInvalidTrigger = errors.New("invalid trigger")
	ErrUnknownType    = errors.New("unknown notification type")
	// ErrNotSchedulable is returned for fire-and-forget types passed to schedule ops.
	ErrNotSchedulable = errors.New("notification type is not schedulable")
)

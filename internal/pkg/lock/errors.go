package lock

import "deepsafe/internal/pkg/result"

// ErrLockTimeout is returned when a key cannot be acquired within the timeout.
var ErrLockTimeout = result.New(result.KindInFlight, "operation already in progress")

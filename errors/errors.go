package errors

import "fmt"

var (
	// ErrRelayNotConfigured selects degraded mode at startup, it is not fatal.
	ErrRelayNotConfigured = fmt.Errorf("no relay configured")
	ErrFetchFailed        = fmt.Errorf("historical fetch failed")
	ErrPublishFailed      = fmt.Errorf("publish failed")
	ErrChannelLost        = fmt.Errorf("channel lost")
	ErrMalformedRecord    = fmt.Errorf("malformed record")
	ErrEmptyDisplayName   = fmt.Errorf("display name must not be empty")
	ErrNotConnected       = fmt.Errorf("transport not connected")
	ErrAlreadyJoined      = fmt.Errorf("session already joined")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
)

package notify

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrResolved            = errors.New("notification already resolved")
	ErrNoEnabledChannel    = errors.New("no channel is enabled with at least one recipient")
	ErrChannelUnavailable  = errors.New("channel is not available for this notification")
	ErrIneligibleRecipient = errors.New("recipient is not eligible for channel")
	ErrNoDrafter           = errors.New("draft tools are not configured")
	ErrBusy                = errors.New("a notification request is already in flight")
)

// Error is a failed send or suppress call. The orchestrator stays open so the operator
// can retry or skip.
type Error struct {
	Action string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("notification %s failed: %v", e.Action, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

package attendance

import (
	"errors"
	"fmt"
)

// All punch and session errors are recoverable and surfaced to the caller.
var (
	ErrInvalidSchedule     = errors.New("invalid session schedule")
	ErrForbidden           = errors.New("role not permitted for this operation")
	ErrNoActiveCheckHere   = errors.New("no active location check at this position")
	ErrSessionEnded        = errors.New("session already ended")
	ErrMustBeInside        = errors.New("must be inside the check area to punch in")
	ErrMustLeaveToExit     = errors.New("still inside the check area")
	ErrUnableToRecordPunch = errors.New("unable to record punch")
)

// WaitError is returned while the exit grace period has not elapsed yet.
type WaitError struct {
	MinutesLeft int
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("wait %d more minute(s) before automatic punch-out", e.MinutesLeft)
}

package attendance

import "errors"

var (
	// ErrAlreadyCheckedIn rejects a second check-in on the same day.
	ErrAlreadyCheckedIn = errors.New("already checked in")
	// ErrNotCheckedIn rejects a checkout with no open check-in.
	ErrNotCheckedIn = errors.New("not checked in yet")
)

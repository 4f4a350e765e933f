package domain

import "errors"

var (
	// ErrAlreadyCheckedIn indicates a daily check-in already exists for the
	// current calendar day. Surfaced synchronously to the caller; the
	// activity is not recorded.
	ErrAlreadyCheckedIn = errors.New("daily check-in already recorded for today")
	// ErrUnknownKind is returned when no points rule exists for a kind.
	ErrUnknownKind = errors.New("unknown activity kind")
)

package profile

import "errors"

var (
	// ErrUnexpectedStatus is returned when the profile host answers with a non-200 status.
	ErrUnexpectedStatus = errors.New("unexpected upstream status")

	// ErrBodyTooLarge is returned when a page exceeds the configured size limit.
	ErrBodyTooLarge = errors.New("profile page too large")

	// ErrParse is returned when content cannot be parsed as HTML.
	ErrParse = errors.New("failed to parse profile page")
)

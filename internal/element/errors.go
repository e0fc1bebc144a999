package element

import "errors"

var (
	// ErrChannelConflict is returned when an element claims a channel number
	// already owned by another element.
	ErrChannelConflict = errors.New("element: channel number already owned")

	// ErrNilElement is returned when adding a nil element.
	ErrNilElement = errors.New("element: nil element")
)

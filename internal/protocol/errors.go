package protocol

import "errors"

var (
	// ErrInvalidConfig is returned by VerifyConfig. Implementations wrap it
	// with the offending field.
	ErrInvalidConfig = errors.New("protocol: invalid config")

	// ErrNotConnected is returned by Sender methods while no session exists.
	ErrNotConnected = errors.New("protocol: not connected")

	// ErrDuplicateLayer is returned when two layers share a name.
	ErrDuplicateLayer = errors.New("protocol: duplicate layer name")
)

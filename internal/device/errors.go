package device

import "errors"

// Domain errors for the device package.
var (
	// ErrNoSelectableProtocol is returned when normal mode is requested but no
	// protocol layer is both enabled and verified.
	ErrNoSelectableProtocol = errors.New("device: no selectable protocol")

	// ErrUnknownLayer is returned for a protocol name not in the registry.
	ErrUnknownLayer = errors.New("device: unknown protocol layer")

	// ErrAlreadyRunning is returned by Run when the main loop is already active.
	ErrAlreadyRunning = errors.New("device: already running")

	// ErrNotRunning is returned by Exec when the main loop is not running.
	ErrNotRunning = errors.New("device: main loop not running")
)

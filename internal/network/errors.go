package network

import "errors"

var (
	// ErrNoActiveInterface is returned when no interface is selected.
	ErrNoActiveInterface = errors.New("network: no active interface")

	// ErrInterfaceDisabled is returned by Setup on a disabled interface.
	ErrInterfaceDisabled = errors.New("network: interface disabled")

	// ErrUnknownInterface is returned by SetActive for an unregistered
	// interface.
	ErrUnknownInterface = errors.New("network: unknown interface")

	// ErrNoMAC is returned when the hardware address cannot be read.
	ErrNoMAC = errors.New("network: mac address unavailable")
)

package mqtt

import "errors"

// Client errors. Broker-side failures are wrapped, so check with errors.Is.
var (
	ErrNotConnected      = errors.New("mqtt: client not connected")
	ErrConnectionFailed  = errors.New("mqtt: connection failed")
	ErrTimeout           = errors.New("mqtt: operation timed out")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// Rejected before reaching the broker.
	ErrInvalidQoS     = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidTopic   = errors.New("mqtt: topic cannot be empty")
	ErrInvalidOptions = errors.New("mqtt: invalid client options")
	ErrInvalidRootCA  = errors.New("mqtt: root CA holds no PEM certificate")
)

package protocol

import (
	"time"

	"github.com/nerrad567/gray-logic-device/internal/proto"
	"github.com/nerrad567/gray-logic-device/internal/storage"
)

// LinkState is the session state reported by Layer.Iterate.
type LinkState int

const (
	// LinkIdle means no session and no attempt in flight.
	LinkIdle LinkState = iota
	// LinkConnecting means an attempt is in flight.
	LinkConnecting
	// LinkRegistered means the device is registered with the server.
	LinkRegistered
	// LinkFailed means the last attempt failed; backoff applies.
	LinkFailed
)

// String returns the state name.
func (s LinkState) String() string {
	switch s {
	case LinkIdle:
		return "idle"
	case LinkConnecting:
		return "connecting"
	case LinkRegistered:
		return "registered"
	case LinkFailed:
		return "failed"
	}
	return "unknown"
}

// Layer is one wire protocol used to reach the server.
type Layer interface {
	// Name identifies the layer, e.g. "mqtt".
	Name() string

	// OnLoadConfig reads the persisted connection parameters.
	OnLoadConfig(cfg storage.Config) error

	// VerifyConfig reports whether the loaded parameters suffice to attempt
	// a connection. Errors wrap ErrInvalidConfig.
	VerifyConfig() error

	// IsEnabled reports whether the layer should be attempted at all.
	IsEnabled() bool

	// IsNetworkRestartRequested reports, and clears, a request to fully
	// reconnect the network before the next attempt.
	IsNetworkRestartRequested() bool

	// ConnectionFailTime is the wait before the next attempt after a
	// failure. Opaque to callers.
	ConnectionFailTime() time.Duration

	// Iterate advances the session. It must return promptly.
	Iterate(now time.Time) LinkState

	// Disconnect ends the session, if any.
	Disconnect()

	// IsRegistered reports whether the device is registered with the server.
	IsRegistered() bool

	// Sender returns the outbound path used by elements.
	Sender() Sender
}

// Sender is the outbound path elements use from IterateConnected. Each call
// occupies the shared outbound buffer for the rest of the tick.
type Sender interface {
	SendChannelValue(channelNumber int32, value [proto.ChannelValueSize]byte, online bool) error
	SendChannelConfig(cfg proto.ChannelConfig) error
}

// Dispatcher receives server requests decoded by a layer. Layers call it
// only from Iterate, on the main loop.
type Dispatcher interface {
	HandleNewValue(v *proto.NewValue) proto.ReplyAction
	FillNewValue(v *proto.NewValue)
	HandleGetChannelState(state *proto.ChannelState)
	HandleCalCfg(req *proto.CalCfgRequest) proto.CalCfgResult
	HandleChannelConfig(cfg *proto.ChannelConfig, local bool) proto.ResultCode
	HandleSetChannelConfigResult(res *proto.SetChannelConfigResult)
	HandleChannelConfigFinished(channelNumber int32)
	HandleDeviceConfigChange(fieldMask uint64)
}

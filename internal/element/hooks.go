package element

import (
	"github.com/nerrad567/gray-logic-device/internal/proto"
	"github.com/nerrad567/gray-logic-device/internal/protocol"
	"github.com/nerrad567/gray-logic-device/internal/storage"
)

// Lifecycle capabilities.
type (
	// ConfigLoader reads saved settings. Called once, before state.
	ConfigLoader interface{ OnLoadConfig(cfg storage.Config) }
	// ConfigPurger removes the element's keys on a factory reset.
	ConfigPurger interface{ PurgeConfig(cfg storage.Config) }
	// StateLoader restores runtime state. Called once, after config.
	StateLoader interface{ OnLoadState(st storage.State) }
	// StateSaver writes runtime state periodically.
	StateSaver interface{ OnSaveState(st storage.State) }
	// Initializer sets up hardware. Must not assume network availability.
	Initializer interface{ OnInit() }
	// AlwaysIterator runs every tick.
	AlwaysIterator interface{ IterateAlways() }
	// ConnectedIterator runs every tick while registered.
	ConnectedIterator interface {
		IterateConnected(s protocol.Sender) Traffic
	}
	// TimerHandler runs about every 10 ms on the timer goroutine.
	TimerHandler interface{ OnTimer() }
	// FastTimerHandler runs about every 1 ms. Must not block.
	FastTimerHandler interface{ OnFastTimer() }
	// SoftResetter flushes critical state before a restart.
	SoftResetter interface{ OnSoftReset() }
	// DeviceConfigListener receives device config change masks.
	DeviceConfigListener interface{ OnDeviceConfigChange(fieldMask uint64) }
	// RegistrationListener is told about each completed registration.
	RegistrationListener interface{ OnRegistered(layer protocol.Layer) }
	// SubDeviceOwner claims sub-device ids.
	SubDeviceOwner interface{ IsOwnerOfSubDeviceID(id int) bool }
	// UpdatePendingReporter overrides the channel based pending check.
	UpdatePendingReporter interface{ IsAnyUpdatePending() bool }
)

// Server request capabilities.
type (
	NewValueHandler interface {
		HandleNewValueFromServer(v *proto.NewValue) proto.ReplyAction
	}
	NewValueFiller interface {
		FillNewValue(v *proto.NewValue)
	}
	ChannelStateHandler interface {
		HandleGetChannelState(state *proto.ChannelState)
	}
	CalCfgHandler interface {
		HandleCalCfgFromServer(req *proto.CalCfgRequest) proto.CalCfgResult
	}
	ChannelConfigHandler interface {
		HandleChannelConfig(cfg *proto.ChannelConfig, local bool) proto.ResultCode
	}
	// WeeklyScheduleHandler handles both schedule slots; alt selects the
	// alternate (cooling) slot.
	WeeklyScheduleHandler interface {
		HandleWeeklySchedule(cfg *proto.ChannelConfig, alt, local bool) proto.ResultCode
	}
	ConfigResultHandler interface {
		HandleSetChannelConfigResult(res *proto.SetChannelConfigResult)
	}
	ConfigFinishedHandler interface {
		HandleChannelConfigFinished()
	}
)

// IterateConnected runs the hook, defaulting to NoTraffic.
func IterateConnected(e Element, s protocol.Sender) Traffic {
	if it, ok := e.(ConnectedIterator); ok {
		return it.IterateConnected(s)
	}
	return NoTraffic
}

// HandleNewValue runs the hook. Elements that cannot take values suppress
// the reply.
func HandleNewValue(e Element, v *proto.NewValue) proto.ReplyAction {
	if h, ok := e.(NewValueHandler); ok {
		return h.HandleNewValueFromServer(v)
	}
	return proto.ReplySuppress
}

// FillNewValue fills v from the element. Without the capability v gets the
// primary channel's current value, or zeroes.
func FillNewValue(e Element, v *proto.NewValue) {
	if f, ok := e.(NewValueFiller); ok {
		f.FillNewValue(v)
		return
	}
	v.Value = [proto.ChannelValueSize]byte{}
	if ch := e.Channel(); ch != nil {
		v.ChannelNumber = ch.Number()
		v.Value = ch.Value()
	}
}

// HandleGetChannelState adds element fields to a prefilled state record.
func HandleGetChannelState(e Element, state *proto.ChannelState) {
	if s, ok := e.(interface{ IsChannelStateEnabled() bool }); ok && !s.IsChannelStateEnabled() {
		return
	}
	if h, ok := e.(ChannelStateHandler); ok {
		h.HandleGetChannelState(state)
	}
}

// HandleCalCfg runs the hook, defaulting to CalCfgResultNotSupported.
func HandleCalCfg(e Element, req *proto.CalCfgRequest) proto.CalCfgResult {
	if h, ok := e.(CalCfgHandler); ok {
		return h.HandleCalCfgFromServer(req)
	}
	return proto.CalCfgResultNotSupported
}

// HandleChannelConfig runs the hook, defaulting to ResultCodeUnsupported.
func HandleChannelConfig(e Element, cfg *proto.ChannelConfig, local bool) proto.ResultCode {
	if h, ok := e.(ChannelConfigHandler); ok {
		return h.HandleChannelConfig(cfg, local)
	}
	return proto.ResultCodeUnsupported
}

// HandleWeeklySchedule runs the hook, defaulting to ResultCodeUnsupported.
func HandleWeeklySchedule(e Element, cfg *proto.ChannelConfig, alt, local bool) proto.ResultCode {
	if h, ok := e.(WeeklyScheduleHandler); ok {
		return h.HandleWeeklySchedule(cfg, alt, local)
	}
	return proto.ResultCodeUnsupported
}

// HandleSetChannelConfigResult runs the hook if present.
func HandleSetChannelConfigResult(e Element, res *proto.SetChannelConfigResult) {
	if h, ok := e.(ConfigResultHandler); ok {
		h.HandleSetChannelConfigResult(res)
	}
}

// HandleChannelConfigFinished runs the hook if present.
func HandleChannelConfigFinished(e Element) {
	if h, ok := e.(ConfigFinishedHandler); ok {
		h.HandleChannelConfigFinished()
	}
}

// IsAnyUpdatePending uses UpdatePendingReporter when implemented, otherwise
// the pending flags of the element's channels.
func IsAnyUpdatePending(e Element) bool {
	if r, ok := e.(UpdatePendingReporter); ok {
		return r.IsAnyUpdatePending()
	}
	if ch := e.Channel(); ch != nil && ch.IsUpdatePending() {
		return true
	}
	if ch := e.SecondaryChannel(); ch != nil && ch.IsUpdatePending() {
		return true
	}
	return false
}

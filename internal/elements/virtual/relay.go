package virtual

import (
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/nerrad567/gray-logic-device/internal/channel"
	"github.com/nerrad567/gray-logic-device/internal/element"
	"github.com/nerrad567/gray-logic-device/internal/proto"
	"github.com/nerrad567/gray-logic-device/internal/protocol"
	"github.com/nerrad567/gray-logic-device/internal/storage"
)

const keyTurnOff = "turn_off"

// RelayConfig is the default channel config of a relay, CBOR encoded.
type RelayConfig struct {
	// TurnOffMs switches the relay off this long after it was turned on.
	// Zero keeps it on.
	TurnOffMs uint32 `cbor:"1,keyasint"`
}

type relayState struct {
	On bool `cbor:"1,keyasint"`
}

// Relay is an on/off channel.
type Relay struct {
	element.Base

	config  storage.Config
	turnOff atomic.Uint32 // default auto off in ms
	offAt   atomic.Int64  // unix nanos, 0 when no auto off is armed
	now     func() time.Time
}

// NewRelay creates a relay on channel number.
func NewRelay(number int32) *Relay {
	r := &Relay{Base: element.NewBase(channel.New(number), nil), now: time.Now}
	r.SetDefaultFunction(channel.FunctionPowerSwitch, false)
	r.SetInitialCaption("Relay", false)
	return r
}

// SetClock replaces time.Now, for tests.
func (r *Relay) SetClock(now func() time.Time) { r.now = now }

// IsOn reports the relay state.
func (r *Relay) IsOn() bool { return r.Channel().Bool() }

// TurnOffDuration returns the configured automatic turn-off delay.
func (r *Relay) TurnOffDuration() time.Duration {
	return time.Duration(r.turnOff.Load()) * time.Millisecond
}

// Set switches the relay. A positive d arms an automatic turn-off; zero
// falls back to the configured delay.
func (r *Relay) Set(on bool, d time.Duration) {
	r.Channel().SetBool(on)
	if !on {
		r.offAt.Store(0)
		return
	}
	if d <= 0 {
		d = r.TurnOffDuration()
	}
	if d > 0 {
		r.offAt.Store(r.now().Add(d).UnixNano())
	} else {
		r.offAt.Store(0)
	}
}

// OnLoadConfig reads the default turn-off delay.
func (r *Relay) OnLoadConfig(cfg storage.Config) {
	r.config = cfg
	if v, err := cfg.GetInt32(r.GenerateKey(keyTurnOff)); err == nil && v > 0 {
		r.turnOff.Store(uint32(v))
	}
}

// PurgeConfig erases the stored turn-off delay.
func (r *Relay) PurgeConfig(cfg storage.Config) {
	_ = cfg.EraseKey(r.GenerateKey(keyTurnOff)) //nolint:errcheck // absent key is fine
}

// OnLoadState restores the last on/off state.
func (r *Relay) OnLoadState(st storage.State) {
	var s relayState
	if err := st.Load(r.section(), &s); err == nil {
		r.Channel().SetBool(s.On)
	}
}

// OnSaveState persists the on/off state.
func (r *Relay) OnSaveState(st storage.State) {
	_ = st.Save(r.section(), relayState{On: r.IsOn()}) //nolint:errcheck // retried on next save
}

func (r *Relay) section() string { return r.GenerateKey("relay") }

// OnTimer fires the automatic turn-off.
func (r *Relay) OnTimer() {
	at := r.offAt.Load()
	if at == 0 || r.now().UnixNano() < at {
		return
	}
	if r.offAt.CompareAndSwap(at, 0) {
		r.Channel().SetBool(false)
	}
}

// OnSoftReset turns off a relay that is waiting for its automatic turn-off.
func (r *Relay) OnSoftReset() {
	if r.offAt.Swap(0) != 0 {
		r.Channel().SetBool(false)
	}
}

// OnRegistered queues the current value for the new server.
func (r *Relay) OnRegistered(protocol.Layer) { r.Channel().RequestUpdate() }

// IterateConnected sends the value when it changed.
func (r *Relay) IterateConnected(s protocol.Sender) element.Traffic {
	return sendPending(r.Channel(), s)
}

// HandleNewValueFromServer switches the relay. A non-zero duration arms the
// automatic turn-off.
func (r *Relay) HandleNewValueFromServer(v *proto.NewValue) proto.ReplyAction {
	r.Set(v.Value[0] != 0, time.Duration(v.DurationMs)*time.Millisecond)
	return proto.ReplySuccess
}

// HandleChannelConfig stores the default turn-off delay.
func (r *Relay) HandleChannelConfig(cfg *proto.ChannelConfig, _ bool) proto.ResultCode {
	if cfg.ConfigType != proto.ConfigTypeDefault {
		return proto.ResultCodeUnsupported
	}
	var rc RelayConfig
	if err := cbor.Unmarshal(cfg.Config, &rc); err != nil {
		return proto.ResultCodeDataError
	}
	r.turnOff.Store(rc.TurnOffMs)
	if r.config != nil {
		if err := r.config.SetInt32(r.GenerateKey(keyTurnOff), int32(rc.TurnOffMs)); err != nil {
			return proto.ResultCodeFalse
		}
	}
	return proto.ResultCodeTrue
}

// sendPending publishes ch if its value changed since the last send.
func sendPending(ch *channel.Channel, s protocol.Sender) element.Traffic {
	if !ch.IsUpdatePending() {
		return element.NoTraffic
	}
	ch.ClearUpdatePending()
	if err := s.SendChannelValue(ch.Number(), ch.Value(), ch.Online()); err != nil {
		ch.RequestUpdate()
		return element.NoTraffic
	}
	return element.TrafficSent
}

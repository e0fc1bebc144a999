package virtual

import (
	"encoding/binary"
	"time"

	"github.com/nerrad567/gray-logic-device/internal/channel"
	"github.com/nerrad567/gray-logic-device/internal/element"
	"github.com/nerrad567/gray-logic-device/internal/proto"
	"github.com/nerrad567/gray-logic-device/internal/protocol"
	"github.com/nerrad567/gray-logic-device/internal/storage"
)

// Schedule slots.
const (
	SlotPrimary = 0
	SlotAlt     = 1
)

const noSlot = -1

var scheduleKeys = [2]string{"weekly", "weekly_alt"}

// Channel value layout.
const (
	valueSetpoint = 0 // int16 LE, hundredths of a degree
	valueProgram  = 2
	valueCooling  = 3
)

// DefaultSetpoint is the setpoint of a thermostat with no saved state,
// in hundredths of a degree.
const DefaultSetpoint int16 = 2100

type thermostatState struct {
	Setpoint int16 `cbor:"1,keyasint"`
	Cooling  bool  `cbor:"2,keyasint"`
}

// Thermostat is a setpoint channel driven by two weekly schedules. The
// primary slot is used while heating, the alternate slot while cooling.
//
// All methods run on the main loop.
type Thermostat struct {
	element.Base

	config storage.Config
	now    func() time.Time

	setpoint int16
	cooling  bool

	schedules   [2]proto.WeeklySchedule
	hasSchedule [2]bool
	pushPending [2]bool
	awaiting    int
	serverDone  bool
}

// NewThermostat creates a thermostat on channel number.
func NewThermostat(number int32) *Thermostat {
	t := &Thermostat{
		Base:     element.NewBase(channel.New(number), nil),
		now:      time.Now,
		setpoint: DefaultSetpoint,
		awaiting: noSlot,
	}
	t.SetDefaultFunction(channel.FunctionHVACThermostat, false)
	t.SetInitialCaption("Thermostat", false)
	return t
}

// SetClock replaces time.Now, for tests.
func (t *Thermostat) SetClock(now func() time.Time) { t.now = now }

// Setpoint returns the setpoint in hundredths of a degree.
func (t *Thermostat) Setpoint() int16 { return t.setpoint }

// SetSetpoint changes the setpoint.
func (t *Thermostat) SetSetpoint(v int16) {
	t.setpoint = v
	t.publish()
}

// Cooling reports whether the alternate schedule is in use.
func (t *Thermostat) Cooling() bool { return t.cooling }

// SetCooling selects the alternate schedule.
func (t *Thermostat) SetCooling(on bool) {
	t.cooling = on
	t.publish()
}

// Schedule returns a copy of a schedule slot.
func (t *Thermostat) Schedule(slot int) (proto.WeeklySchedule, bool) {
	return t.schedules[slot], t.hasSchedule[slot]
}

// SetLocalSchedule replaces a schedule slot and queues it for the server.
func (t *Thermostat) SetLocalSchedule(slot int, ws proto.WeeklySchedule) {
	t.storeSchedule(slot, ws)
	t.pushPending[slot] = true
}

// ActiveProgram returns the program of the current quarter hour in the slot
// selected by the cooling flag. Zero means off.
func (t *Thermostat) ActiveProgram(now time.Time) uint8 {
	slot := SlotPrimary
	if t.cooling {
		slot = SlotAlt
	}
	if !t.hasSchedule[slot] {
		return 0
	}
	return t.schedules[slot].Quarters[quarterIndex(now)]
}

// quarterIndex maps now to a slot of the week starting Monday 00:00.
func quarterIndex(now time.Time) int {
	day := (int(now.Weekday()) + 6) % 7
	return day*24*4 + now.Hour()*4 + now.Minute()/15
}

func (t *Thermostat) storeSchedule(slot int, ws proto.WeeklySchedule) {
	t.schedules[slot] = ws
	t.hasSchedule[slot] = true
	if t.config != nil {
		_ = t.config.SetBlob(t.GenerateKey(scheduleKeys[slot]), ws.Quarters[:]) //nolint:errcheck // kept in memory either way
	}
}

func (t *Thermostat) publish() {
	var v [proto.ChannelValueSize]byte
	binary.LittleEndian.PutUint16(v[valueSetpoint:], uint16(t.setpoint))
	v[valueProgram] = t.ActiveProgram(t.now())
	if t.cooling {
		v[valueCooling] = 1
	}
	t.Channel().SetValue(v)
}

// OnLoadConfig reads both schedule slots. Blobs of the wrong size are ignored.
func (t *Thermostat) OnLoadConfig(cfg storage.Config) {
	t.config = cfg
	for slot, key := range scheduleKeys {
		raw, err := cfg.GetBlob(t.GenerateKey(key))
		if err != nil {
			continue
		}
		var ws proto.WeeklySchedule
		if copy(ws.Quarters[:], raw) == len(ws.Quarters) {
			t.schedules[slot] = ws
			t.hasSchedule[slot] = true
		}
	}
}

// PurgeConfig erases both schedule slots.
func (t *Thermostat) PurgeConfig(cfg storage.Config) {
	for _, key := range scheduleKeys {
		_ = cfg.EraseKey(t.GenerateKey(key)) //nolint:errcheck // absent key is fine
	}
}

// OnLoadState restores the setpoint and the cooling flag.
func (t *Thermostat) OnLoadState(st storage.State) {
	var s thermostatState
	if err := st.Load(t.GenerateKey("thermo"), &s); err == nil {
		t.setpoint, t.cooling = s.Setpoint, s.Cooling
	}
}

// OnSaveState persists the setpoint and the cooling flag.
func (t *Thermostat) OnSaveState(st storage.State) {
	_ = st.Save(t.GenerateKey("thermo"), thermostatState{Setpoint: t.setpoint, Cooling: t.cooling}) //nolint:errcheck // retried on next save
}

// OnInit publishes the restored setpoint.
func (t *Thermostat) OnInit() { t.publish() }

// IterateAlways refreshes the channel value as the active program changes.
func (t *Thermostat) IterateAlways() { t.publish() }

// OnRegistered restarts config reconciliation. Pushes wait until the server
// has sent its own configs.
func (t *Thermostat) OnRegistered(protocol.Layer) {
	t.serverDone = false
	t.awaiting = noSlot
	t.Channel().RequestUpdate()
}

// HandleChannelConfigFinished allows pending schedules to be pushed.
func (t *Thermostat) HandleChannelConfigFinished() { t.serverDone = true }

// IterateConnected sends a changed value first, then one pending schedule.
func (t *Thermostat) IterateConnected(s protocol.Sender) element.Traffic {
	if sendPending(t.Channel(), s) == element.TrafficSent {
		return element.TrafficSent
	}
	if !t.serverDone || t.awaiting != noSlot {
		return element.NoTraffic
	}
	for slot := range t.pushPending {
		if !t.pushPending[slot] {
			continue
		}
		cfg := proto.ChannelConfig{
			ChannelNumber: t.ChannelNumber(),
			Func:          t.Channel().Function(),
			ConfigType:    slotConfigType(slot),
			Config:        append([]byte(nil), t.schedules[slot].Quarters[:]...),
		}
		if err := s.SendChannelConfig(cfg); err != nil {
			return element.NoTraffic
		}
		t.awaiting = slot
		return element.TrafficSent
	}
	return element.NoTraffic
}

// HandleSetChannelConfigResult settles a pushed schedule. A temporarily
// unavailable server gets the schedule again; any other refusal drops it.
func (t *Thermostat) HandleSetChannelConfigResult(res *proto.SetChannelConfigResult) {
	slot := configTypeSlot(res.ConfigType)
	if slot == noSlot || slot != t.awaiting {
		return
	}
	t.awaiting = noSlot
	if res.Result != proto.ResultCodeTemporarilyUnavailable {
		t.pushPending[slot] = false
	}
}

// HandleWeeklySchedule stores a schedule. One coming from the server wins
// over a local edit that was not pushed yet.
func (t *Thermostat) HandleWeeklySchedule(cfg *proto.ChannelConfig, alt, local bool) proto.ResultCode {
	var ws proto.WeeklySchedule
	if len(cfg.Config) != len(ws.Quarters) {
		return proto.ResultCodeDataError
	}
	copy(ws.Quarters[:], cfg.Config)
	slot := SlotPrimary
	if alt {
		slot = SlotAlt
	}
	t.storeSchedule(slot, ws)
	t.pushPending[slot] = local
	return proto.ResultCodeTrue
}

// HandleNewValueFromServer takes the setpoint from the server.
func (t *Thermostat) HandleNewValueFromServer(v *proto.NewValue) proto.ReplyAction {
	t.setpoint = int16(binary.LittleEndian.Uint16(v.Value[valueSetpoint:]))
	t.publish()
	return proto.ReplySuccess
}

// IsAnyUpdatePending reports an unsent value or an unpushed schedule.
func (t *Thermostat) IsAnyUpdatePending() bool {
	return t.Channel().IsUpdatePending() || t.pushPending[SlotPrimary] || t.pushPending[SlotAlt]
}

func slotConfigType(slot int) proto.ConfigType {
	if slot == SlotAlt {
		return proto.ConfigTypeAltWeeklySchedule
	}
	return proto.ConfigTypeWeeklySchedule
}

func configTypeSlot(ct proto.ConfigType) int {
	switch ct {
	case proto.ConfigTypeWeeklySchedule:
		return SlotPrimary
	case proto.ConfigTypeAltWeeklySchedule:
		return SlotAlt
	}
	return noSlot
}

package proto

// NewValue is a server request to set a channel value.
type NewValue struct {
	SenderID      int32
	ChannelNumber int32
	DurationMs    uint32
	Value         [ChannelValueSize]byte
}

// ChannelState is the diagnostic record returned for a channel.
// The orchestrator fills the network and device fields before an element
// adds its own.
type ChannelState struct {
	ReceiverID    int32
	ChannelNumber int32
	Fields        uint32

	IPv4        [4]byte
	MAC         [6]byte
	WiFiRSSI    int32
	WiFiSignal  uint8
	BatteryLvl  uint8
	Uptime      uint32
	Connection  uint32
	LastRestart uint8
}

// Channel state field bits.
const (
	ChannelStateFieldIPv4       uint32 = 1 << 0
	ChannelStateFieldMAC        uint32 = 1 << 1
	ChannelStateFieldBattery    uint32 = 1 << 2
	ChannelStateFieldWiFiRSSI   uint32 = 1 << 4
	ChannelStateFieldWiFiSignal uint32 = 1 << 5
	ChannelStateFieldUptime     uint32 = 1 << 8
)

// CalCfgRequest is a server-issued maintenance command.
type CalCfgRequest struct {
	SenderID      int32
	ChannelNumber int32
	Command       int32
	SuperUserAuth bool
	DataType      int32
	Data          []byte
}

// ConfigType selects what a ChannelConfig carries.
type ConfigType uint8

const (
	ConfigTypeDefault           ConfigType = 0
	ConfigTypeWeeklySchedule    ConfigType = 2
	ConfigTypeAltWeeklySchedule ConfigType = 3
)

// ChannelConfig is a channel configuration record. Config is opaque to the
// core; elements decode it.
type ChannelConfig struct {
	ChannelNumber int32
	Func          int32
	ConfigType    ConfigType
	Config        []byte
}

// WeeklySchedule is a per-channel program of quarter-hour slots. Each entry
// is a program index; zero means off.
type WeeklySchedule struct {
	Quarters [7 * 24 * 4]uint8
}

// SetChannelConfigResult acknowledges a config the device pushed earlier.
type SetChannelConfigResult struct {
	ChannelNumber int32
	ConfigType    ConfigType
	Result        ResultCode
}

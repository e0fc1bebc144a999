package network

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-device/internal/proto"
)

// HostnameMaxLen is the longest hostname, in visible characters.
const HostnameMaxLen = 31

// IntfType is the kind of network interface.
type IntfType uint8

const (
	IntfTypeUnknown  IntfType = 0
	IntfTypeEthernet IntfType = 1
	IntfTypeWiFi     IntfType = 2
)

// String returns the type name.
func (t IntfType) String() string {
	switch t {
	case IntfTypeEthernet:
		return "ethernet"
	case IntfTypeWiFi:
		return "wifi"
	}
	return "unknown"
}

// Mode is the device-wide network operating mode.
type Mode int32

const (
	// ModeNormal connects to the server.
	ModeNormal Mode = iota
	// ModeConfig suppresses server connections for local provisioning.
	ModeConfig
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeConfig {
		return "config"
	}
	return "normal"
}

// State is the lifecycle state of one interface.
type State int32

const (
	StateUninitialized State = iota
	StateSettingUp
	StateReady
	StateDisabled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSettingUp:
		return "setting_up"
	case StateReady:
		return "ready"
	case StateDisabled:
		return "disabled"
	}
	return "unknown"
}

// Interface is a network driver.
type Interface interface {
	// NetBase returns the shared per-instance attributes.
	NetBase() *Base

	// Setup brings the link up using the hostname, TLS material and IP
	// settings held in Base. It must not block on IP acquisition.
	Setup() error

	// Disable brings the link down.
	Disable()

	// IsReady reports link-layer and IP availability.
	IsReady() bool

	// MacAddr reads the hardware address.
	MacAddr() ([6]byte, error)
}

// Optional driver capabilities.
type (
	Uninitializer interface{ Uninit() }
	// Iterator runs driver work every tick; false means not operational.
	Iterator interface{ Iterate() bool }
	// ModeSwitcher is told about Normal/Config mode changes.
	ModeSwitcher interface{ OnModeChange(mode Mode) }
	// WiFiConfigurer accepts WiFi credentials.
	WiFiConfigurer interface {
		SetSSID(ssid string)
		SetPassword(password string)
		IsWiFiConfigRequired() bool
	}
	// StateFiller adds driver data (IP, RSSI) to a channel state record.
	StateFiller interface{ FillStateData(state *proto.ChannelState) }
)

// Base is embedded by drivers.
type Base struct {
	name     string
	intfType IntfType

	mu         sync.Mutex
	hostname   string
	rootCA     []byte
	localIP    [4]byte
	useLocalIP bool
	ipTimeout  time.Duration

	enabled     atomic.Bool
	setupNeeded atomic.Bool
	state       atomic.Int32

	// Main loop only.
	setupStarted    time.Time
	timeoutReported bool
}

// Init sets the identity of a driver's embedded Base and enables it. Call
// it from the driver constructor.
func (b *Base) Init(name string, t IntfType) {
	b.name = name
	b.intfType = t
	b.enabled.Store(true)
}

// NetBase implements Interface for drivers that embed Base.
func (b *Base) NetBase() *Base {
	return b
}

// Name returns the interface name, e.g. "eth0".
func (b *Base) Name() string {
	return b.name
}

// Type returns the interface type.
func (b *Base) Type() IntfType {
	return b.intfType
}

// SetHostname sets the hostname, truncated to HostnameMaxLen.
func (b *Base) SetHostname(hostname string) {
	if len(hostname) > HostnameMaxLen {
		hostname = hostname[:HostnameMaxLen]
	}
	b.mu.Lock()
	b.hostname = hostname
	b.mu.Unlock()
}

// Hostname returns the hostname.
func (b *Base) Hostname() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hostname
}

// SetRootCA sets the PEM root certificate used for TLS connections.
func (b *Base) SetRootCA(pem []byte) {
	b.mu.Lock()
	b.rootCA = append([]byte(nil), pem...)
	b.mu.Unlock()
}

// RootCA returns the root certificate, or nil.
func (b *Base) RootCA() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rootCA
}

// SetLocalIP sets a static IPv4 override.
func (b *Base) SetLocalIP(ip [4]byte) {
	b.mu.Lock()
	b.localIP = ip
	b.useLocalIP = true
	b.mu.Unlock()
}

// ClearLocalIP removes the static IPv4 override.
func (b *Base) ClearLocalIP() {
	b.mu.Lock()
	b.localIP = [4]byte{}
	b.useLocalIP = false
	b.mu.Unlock()
}

// LocalIP returns the IPv4 override and whether it is in use.
func (b *Base) LocalIP() ([4]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.localIP, b.useLocalIP
}

// SetIPSetupTimeout sets how long IP acquisition may take after Setup.
// Zero disables the timeout.
func (b *Base) SetIPSetupTimeout(d time.Duration) {
	b.mu.Lock()
	b.ipTimeout = d
	b.mu.Unlock()
}

func (b *Base) ipSetupTimeout() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ipTimeout
}

// IsEnabled reports whether the interface may be set up.
func (b *Base) IsEnabled() bool {
	return b.enabled.Load()
}

// SetEnabled enables or disables the interface.
func (b *Base) SetEnabled(enabled bool) {
	b.enabled.Store(enabled)
}

// State returns the lifecycle state.
func (b *Base) State() State {
	return State(b.state.Load())
}

func (b *Base) setState(s State) {
	b.state.Store(int32(s))
}

// SetSetupNeeded raises the setup-needed edge for this interface.
func (b *Base) SetSetupNeeded() {
	b.setupNeeded.Store(true)
}

// popSetupNeeded returns and clears the edge.
func (b *Base) popSetupNeeded() bool {
	return b.setupNeeded.Swap(false)
}

// GenerateHostname returns prefix followed by the uppercase hex of the last
// macSize bytes of mac, truncated to HostnameMaxLen.
func GenerateHostname(prefix string, macSize int, mac [6]byte) string {
	if macSize < 0 {
		macSize = 0
	}
	if macSize > len(mac) {
		macSize = len(mac)
	}

	const hex = "0123456789ABCDEF"
	var sb strings.Builder
	sb.WriteString(prefix)
	for _, c := range mac[len(mac)-macSize:] {
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&0x0f])
	}

	out := sb.String()
	if len(out) > HostnameMaxLen {
		out = out[:HostnameMaxLen]
	}
	return out
}

package network

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-device/internal/proto"
	"github.com/nerrad567/gray-logic-device/internal/storage"
)

// Config keys read by LoadConfig.
const (
	KeyIntfType     = "netintf_type"
	KeyWiFiSSID     = "wifi_ssid"
	KeyWiFiPassword = "wifi_pass"
)

// Logger is the logging interface used by the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager holds the device's interfaces and the process-wide network state.
//
// Iterate, Setup, Disable, Uninit and the mode setters are called from the
// main loop. The query methods are safe from any goroutine.
type Manager struct {
	mu     sync.RWMutex
	ifaces []Interface
	active Interface

	mode       atomic.Int32
	sslEnabled atomic.Bool

	onDisconnect func()
	logger       Logger
	now          func() time.Time
}

// NewManager creates an empty manager in Normal mode with SSL enabled.
func NewManager() *Manager {
	m := &Manager{logger: noopLogger{}, now: time.Now}
	m.sslEnabled.Store(true)
	return m
}

// SetLogger sets the logger.
func (m *Manager) SetLogger(l Logger) {
	if l != nil {
		m.logger = l
	}
}

// SetClock replaces the time source. Used by tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Add registers an interface. The first one added becomes active.
func (m *Manager) Add(i Interface) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ifaces = append(m.ifaces, i)
	if m.active == nil {
		m.active = i
	}
}

// Interfaces returns the registered interfaces in order.
func (m *Manager) Interfaces() []Interface {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Interface(nil), m.ifaces...)
}

// Instance returns the active interface, or nil.
func (m *Manager) Instance() Interface {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// FirstInstance returns the first registered interface, or nil.
func (m *Manager) FirstInstance() Interface {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.ifaces) == 0 {
		return nil
	}
	return m.ifaces[0]
}

// SetActive selects a registered interface. The previous one is disabled.
func (m *Manager) SetActive(i Interface) error {
	if i == nil {
		return ErrUnknownInterface
	}
	m.mu.Lock()
	found := false
	for _, candidate := range m.ifaces {
		if candidate == i {
			found = true
			break
		}
	}
	if !found {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownInterface, i.NetBase().Name())
	}
	prev := m.active
	m.active = i
	m.mu.Unlock()

	if prev != nil && prev != i && prev.NetBase().State() != StateUninitialized {
		prev.Disable()
		prev.NetBase().setState(StateDisabled)
	}
	m.logger.Info("active network interface selected", "interface", i.NetBase().Name(), "type", i.NetBase().Type())
	return nil
}

// Setup starts the active interface.
func (m *Manager) Setup() error {
	i := m.Instance()
	if i == nil {
		return ErrNoActiveInterface
	}
	b := i.NetBase()
	if !b.IsEnabled() {
		return fmt.Errorf("%w: %s", ErrInterfaceDisabled, b.Name())
	}

	b.setState(StateSettingUp)
	m.ClearTimeCounters()
	if err := i.Setup(); err != nil {
		b.setState(StateUninitialized)
		return fmt.Errorf("setting up %s: %w", b.Name(), err)
	}
	m.logger.Info("network setup started", "interface", b.Name(), "hostname", b.Hostname())
	return nil
}

// Disable brings the active interface down and ends protocol sessions.
func (m *Manager) Disable() {
	i := m.Instance()
	if i == nil {
		return
	}
	m.DisconnectProtocols()
	if i.NetBase().State() == StateDisabled {
		return
	}
	i.Disable()
	i.NetBase().setState(StateDisabled)
	m.logger.Info("network disabled", "interface", i.NetBase().Name())
}

// Uninit releases the active interface and ends protocol sessions.
func (m *Manager) Uninit() {
	i := m.Instance()
	if i == nil {
		return
	}
	m.DisconnectProtocols()
	if i.NetBase().State() == StateUninitialized {
		return
	}
	if u, ok := i.(Uninitializer); ok {
		u.Uninit()
	} else {
		i.Disable()
	}
	i.NetBase().setState(StateUninitialized)
}

// IsReady reports whether the active interface is Ready.
func (m *Manager) IsReady() bool {
	i := m.Instance()
	return i != nil && i.NetBase().State() == StateReady
}

// Iterate advances the active interface. It returns false when there is no
// active interface or it is not operational; the orchestrator then skips
// protocol work for the tick.
func (m *Manager) Iterate() bool {
	i := m.Instance()
	if i == nil {
		return false
	}
	b := i.NetBase()

	switch b.State() {
	case StateUninitialized, StateDisabled:
		return false
	}

	operational := true
	if it, ok := i.(Iterator); ok {
		operational = it.Iterate()
	}

	switch b.State() {
	case StateSettingUp:
		if operational && i.IsReady() {
			b.setState(StateReady)
			m.ClearTimeCounters()
			m.logger.Info("network ready", "interface", b.Name())
			return true
		}
		if m.IsIPSetupTimeout() && !b.timeoutReported {
			b.timeoutReported = true
			b.SetSetupNeeded()
			m.logger.Warn("ip setup timeout", "interface", b.Name(), "timeout", b.ipSetupTimeout())
		}
		return false

	case StateReady:
		if !operational || !i.IsReady() {
			b.setState(StateSettingUp)
			m.ClearTimeCounters()
			m.DisconnectProtocols()
			m.logger.Warn("network link lost", "interface", b.Name(), "operational", operational)
			return false
		}
		return true
	}
	return false
}

// SetConfigMode switches to Config mode and ends protocol sessions.
func (m *Manager) SetConfigMode() {
	m.switchMode(ModeConfig)
}

// SetNormalMode switches to Normal mode and ends protocol sessions.
func (m *Manager) SetNormalMode() {
	m.switchMode(ModeNormal)
}

func (m *Manager) switchMode(mode Mode) {
	if Mode(m.mode.Swap(int32(mode))) == mode {
		return
	}
	m.DisconnectProtocols()
	for _, i := range m.Interfaces() {
		if s, ok := i.(ModeSwitcher); ok {
			s.OnModeChange(mode)
		}
	}
	m.logger.Info("network mode changed", "mode", mode)
}

// Mode returns the current mode.
func (m *Manager) Mode() Mode {
	return Mode(m.mode.Load())
}

// SetSetupNeeded raises the setup-needed edge on the active interface.
func (m *Manager) SetSetupNeeded() {
	if i := m.Instance(); i != nil {
		i.NetBase().SetSetupNeeded()
	}
}

// PopSetupNeeded returns true if any interface raised setup-needed since the
// last call, and clears every flag.
func (m *Manager) PopSetupNeeded() bool {
	needed := false
	for _, i := range m.Interfaces() {
		if i.NetBase().popSetupNeeded() {
			needed = true
		}
	}
	return needed
}

// MacAddr reads the MAC address of the active interface.
func (m *Manager) MacAddr() ([6]byte, error) {
	i := m.Instance()
	if i == nil {
		return [6]byte{}, ErrNoActiveInterface
	}
	mac, err := i.MacAddr()
	if err != nil {
		return [6]byte{}, fmt.Errorf("%w: %w", ErrNoMAC, err)
	}
	return mac, nil
}

// SetHostname generates the hostname from prefix and the active MAC and
// applies it to every interface.
func (m *Manager) SetHostname(prefix string, macSize int) (string, error) {
	mac, err := m.MacAddr()
	if err != nil {
		return "", err
	}
	hostname := GenerateHostname(prefix, macSize, mac)
	for _, i := range m.Interfaces() {
		i.NetBase().SetHostname(hostname)
	}
	return hostname, nil
}

// IsIPSetupTimeout reports whether the active interface has been setting up
// for longer than its IP setup timeout.
func (m *Manager) IsIPSetupTimeout() bool {
	i := m.Instance()
	if i == nil {
		return false
	}
	b := i.NetBase()
	timeout := b.ipSetupTimeout()
	if timeout <= 0 || b.State() != StateSettingUp || b.setupStarted.IsZero() {
		return false
	}
	return m.now().Sub(b.setupStarted) > timeout
}

// ClearTimeCounters restarts the IP setup timeout of the active interface.
func (m *Manager) ClearTimeCounters() {
	if i := m.Instance(); i != nil {
		b := i.NetBase()
		b.setupStarted = m.now()
		b.timeoutReported = false
	}
}

// SetSSLEnabled toggles TLS for protocol connections. Per-instance root
// certificates are kept; see RootCA.
func (m *Manager) SetSSLEnabled(enabled bool) {
	m.sslEnabled.Store(enabled)
}

// SSLEnabled reports the TLS toggle.
func (m *Manager) SSLEnabled() bool {
	return m.sslEnabled.Load()
}

// RootCA returns the active interface's root certificate when SSL is
// enabled, or nil.
func (m *Manager) RootCA() []byte {
	if !m.SSLEnabled() {
		return nil
	}
	if i := m.Instance(); i != nil {
		return i.NetBase().RootCA()
	}
	return nil
}

// Hostname returns the active interface's hostname.
func (m *Manager) Hostname() string {
	if i := m.Instance(); i != nil {
		return i.NetBase().Hostname()
	}
	return ""
}

// OnDisconnectProtocols registers the hook run whenever the network ends
// protocol sessions.
func (m *Manager) OnDisconnectProtocols(fn func()) {
	m.onDisconnect = fn
}

// DisconnectProtocols runs the registered hook.
func (m *Manager) DisconnectProtocols() {
	if m.onDisconnect != nil {
		m.onDisconnect()
	}
}

// LoadConfig selects the active interface from the persisted interface
// type and passes stored WiFi credentials to WiFi drivers. Missing keys keep
// the current selection.
func (m *Manager) LoadConfig(cfg storage.Config) error {
	t, err := cfg.GetUInt8(KeyIntfType)
	switch {
	case err == nil:
		for _, i := range m.Interfaces() {
			if i.NetBase().Type() == IntfType(t) {
				if err := m.SetActive(i); err != nil {
					return err
				}
				break
			}
		}
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("reading %s: %w", KeyIntfType, err)
	}

	ssid, ssidErr := cfg.GetString(KeyWiFiSSID)
	pass, passErr := cfg.GetString(KeyWiFiPassword)
	for _, i := range m.Interfaces() {
		w, ok := i.(WiFiConfigurer)
		if !ok {
			continue
		}
		if ssidErr == nil {
			w.SetSSID(ssid)
		}
		if passErr == nil {
			w.SetPassword(pass)
		}
	}
	return nil
}

// IsWiFiConfigRequired reports whether the active interface is WiFi and
// lacks credentials.
func (m *Manager) IsWiFiConfigRequired() bool {
	if w, ok := m.Instance().(WiFiConfigurer); ok {
		return w.IsWiFiConfigRequired()
	}
	return false
}

// FillStateData writes MAC and driver data of the active interface into a
// channel state record.
func (m *Manager) FillStateData(state *proto.ChannelState) {
	i := m.Instance()
	if i == nil {
		return
	}
	if mac, err := i.MacAddr(); err == nil {
		state.MAC = mac
		state.Fields |= proto.ChannelStateFieldMAC
	}
	if f, ok := i.(StateFiller); ok {
		f.FillStateData(state)
	}
}

package network

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-device/internal/proto"
)

// Supplicant is the daemon that associates the WiFi link.
// *process.Manager satisfies it.
type Supplicant interface {
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
}

// WiFi is a wireless interface driven by wpa_supplicant.
type WiFi struct {
	Base
	linkDriver

	supplicant Supplicant
	confPath   string
	logger     Logger

	credMu   sync.Mutex
	ssid     string
	password string
}

// NewWiFi creates a WiFi driver. confPath is where the supplicant config is
// written before the daemon starts; the supplicant must be configured to
// read it.
func NewWiFi(linkName string, ops LinkOps, supplicant Supplicant, confPath string) *WiFi {
	if ops == nil {
		ops = SystemLinks{}
	}
	w := &WiFi{
		linkDriver: linkDriver{ops: ops, linkName: linkName, prefixLen: defaultPrefixLen},
		supplicant: supplicant,
		confPath:   confPath,
		logger:     noopLogger{},
	}
	w.Base.Init(linkName, IntfTypeWiFi)
	return w
}

// SetLogger sets the logger.
func (w *WiFi) SetLogger(l Logger) {
	if l != nil {
		w.logger = l
	}
}

// SetSSID implements WiFiConfigurer.
func (w *WiFi) SetSSID(ssid string) {
	w.credMu.Lock()
	w.ssid = ssid
	w.credMu.Unlock()
}

// SetPassword implements WiFiConfigurer.
func (w *WiFi) SetPassword(password string) {
	w.credMu.Lock()
	w.password = password
	w.credMu.Unlock()
}

// SSID returns the configured network name.
func (w *WiFi) SSID() string {
	w.credMu.Lock()
	defer w.credMu.Unlock()
	return w.ssid
}

// IsWiFiConfigRequired implements WiFiConfigurer.
func (w *WiFi) IsWiFiConfigRequired() bool {
	return w.SSID() == ""
}

// Setup writes the supplicant config, starts the supplicant and brings the
// link up.
func (w *WiFi) Setup() error {
	if w.IsWiFiConfigRequired() {
		w.SetSetupNeeded()
		return fmt.Errorf("wifi %s: ssid not configured", w.linkName)
	}
	if err := w.up(&w.Base); err != nil {
		return err
	}
	return w.startSupplicant()
}

// startSupplicant rewrites the supplicant config from the current
// credentials and starts the daemon if it is not running.
func (w *WiFi) startSupplicant() error {
	if err := w.writeConf(); err != nil {
		return err
	}
	if w.supplicant == nil || w.supplicant.IsRunning() {
		return nil
	}
	if err := w.supplicant.Start(context.Background()); err != nil {
		return fmt.Errorf("starting supplicant: %w", err)
	}
	return nil
}

func (w *WiFi) writeConf() error {
	if w.confPath == "" {
		return nil
	}
	w.credMu.Lock()
	ssid, pass := w.ssid, w.password
	w.credMu.Unlock()

	var sb strings.Builder
	sb.WriteString("ctrl_interface=DIR=/run/wpa_supplicant\nupdate_config=0\n\nnetwork={\n")
	fmt.Fprintf(&sb, "\tssid=%q\n", ssid)
	if pass == "" {
		sb.WriteString("\tkey_mgmt=NONE\n")
	} else {
		fmt.Fprintf(&sb, "\tpsk=%q\n", pass)
	}
	sb.WriteString("}\n")

	if err := os.MkdirAll(filepath.Dir(w.confPath), 0o750); err != nil {
		return fmt.Errorf("creating supplicant config dir: %w", err)
	}
	if err := os.WriteFile(w.confPath, []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("writing supplicant config: %w", err)
	}
	return nil
}

// Disable stops the supplicant and brings the link down.
func (w *WiFi) Disable() {
	w.stopSupplicant()
	if err := w.down(); err != nil {
		w.logger.Warn("disabling wifi failed", "interface", w.linkName, "error", err)
	}
}

// Uninit implements Uninitializer.
func (w *WiFi) Uninit() {
	w.Disable()
}

func (w *WiFi) stopSupplicant() {
	if w.supplicant == nil {
		return
	}
	if err := w.supplicant.Stop(); err != nil {
		w.logger.Warn("stopping supplicant failed", "error", err)
	}
}

// Iterate implements Iterator. A supplicant that died makes the interface
// non-operational until the process manager restarts it.
func (w *WiFi) Iterate() bool {
	if w.supplicant == nil {
		return true
	}
	return w.supplicant.IsRunning()
}

// OnModeChange implements ModeSwitcher. Config mode releases the
// association so the radio is free for local provisioning; normal mode
// associates again with the credentials current at that point.
func (w *WiFi) OnModeChange(mode Mode) {
	if mode == ModeConfig {
		w.stopSupplicant()
		return
	}
	switch w.State() {
	case StateUninitialized, StateDisabled:
		return
	}
	if w.IsWiFiConfigRequired() {
		w.SetSetupNeeded()
		return
	}
	if err := w.startSupplicant(); err != nil {
		w.logger.Error("restarting supplicant failed", "interface", w.linkName, "error", err)
	}
}

// IsReady implements Interface.
func (w *WiFi) IsReady() bool {
	return w.ready()
}

// MacAddr implements Interface.
func (w *WiFi) MacAddr() ([6]byte, error) {
	return w.mac()
}

// FillStateData implements StateFiller.
func (w *WiFi) FillStateData(state *proto.ChannelState) {
	w.fillState(state)
}

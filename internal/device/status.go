package device

import (
	"time"

	"github.com/nerrad567/gray-logic-device/internal/network"
	"github.com/nerrad567/gray-logic-device/internal/protocol"
)

// Status is the device-level connection status.
type Status int32

const (
	StatusInitializing Status = iota
	StatusMissingCredentials
	StatusConfigMode
	StatusNetworkDisconnected
	StatusRegisterInProgress
	StatusRegistered
	StatusSoftReset
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusMissingCredentials:
		return "missing_credentials"
	case StatusConfigMode:
		return "config_mode"
	case StatusNetworkDisconnected:
		return "network_disconnected"
	case StatusRegisterInProgress:
		return "register_in_progress"
	case StatusRegistered:
		return "registered"
	case StatusSoftReset:
		return "soft_reset"
	}
	return "unknown"
}

// ProtocolStatus describes one protocol layer.
type ProtocolStatus struct {
	Name        string    `json:"name"`
	Enabled     bool      `json:"enabled"`
	Selectable  bool      `json:"selectable"`
	State       string    `json:"state"`
	Registered  bool      `json:"registered"`
	Failures    int       `json:"failures"`
	NextAttempt time.Time `json:"next_attempt,omitzero"`
	ConfigError string    `json:"config_error,omitempty"`
}

// Snapshot is a point-in-time view of the device for the local API.
type Snapshot struct {
	Name            string           `json:"name"`
	GUID            string           `json:"guid"`
	SoftwareVersion string           `json:"software_version,omitempty"`
	Hostname        string           `json:"hostname"`
	Status          string           `json:"status"`
	Mode            string           `json:"mode"`
	NetworkReady    bool             `json:"network_ready"`
	Registered      bool             `json:"registered"`
	Elements        int              `json:"elements"`
	UpdatePending   bool             `json:"update_pending"`
	Uptime          time.Duration    `json:"uptime_ns"`
	Protocols       []ProtocolStatus `json:"protocols"`
}

// Status returns the current device status.
func (d *Device) Status() Status {
	return Status(d.status.Load())
}

// Snapshot collects the current device view. Safe from any goroutine.
func (d *Device) Snapshot() Snapshot {
	s := Snapshot{
		Name:            d.cfg.Name,
		GUID:            d.guid,
		SoftwareVersion: d.cfg.SoftwareVersion,
		Hostname:        d.network.Hostname(),
		Status:          d.Status().String(),
		Mode:            d.network.Mode().String(),
		NetworkReady:    d.network.IsReady(),
		Registered:      d.protocols.AnyRegistered(),
		Elements:        d.elements.Len(),
		UpdatePending:   d.IsAnyUpdatePending(),
	}
	if !d.startedAt.IsZero() {
		s.Uptime = d.now().Sub(d.startedAt)
	}

	selectable := make(map[string]bool)
	for _, l := range d.protocols.Selectable() {
		selectable[l.Name()] = true
	}

	d.linksMu.RLock()
	defer d.linksMu.RUnlock()
	for _, l := range d.protocols.Layers() {
		ps := ProtocolStatus{
			Name:       l.Name(),
			Enabled:    l.IsEnabled(),
			Selectable: selectable[l.Name()],
			State:      protocol.LinkIdle.String(),
		}
		if info, ok := d.links[l.Name()]; ok {
			ps.State = info.state.String()
			ps.Registered = info.registered
			ps.Failures = info.backoff.Failures()
			ps.NextAttempt = info.backoff.NextAttempt()
		}
		if err := d.protocols.ConfigError(l.Name()); err != nil {
			ps.ConfigError = err.Error()
		}
		s.Protocols = append(s.Protocols, ps)
	}
	return s
}

func (d *Device) setStatus(s Status) {
	if Status(d.status.Swap(int32(s))) == s {
		return
	}
	d.logger.Debug("device status changed", "status", s)
	d.listenersMu.RLock()
	listeners := d.listeners
	d.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(s)
	}
}

// idleStatus is the status outside normal operation.
func (d *Device) idleStatus() Status {
	if d.network.Mode() == network.ModeConfig {
		if len(d.protocols.Selectable()) == 0 {
			return StatusMissingCredentials
		}
		return StatusConfigMode
	}
	return StatusNetworkDisconnected
}

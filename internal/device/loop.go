package device

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-device/internal/element"
	"github.com/nerrad567/gray-logic-device/internal/network"
	"github.com/nerrad567/gray-logic-device/internal/protocol"
)

// Iterate runs one main loop tick.
func (d *Device) Iterate(now time.Time) {
	if d.syncElements() {
		d.metrics.SetElements(d.elements.Len())
	}

	for _, e := range d.initializedElements() {
		if it, ok := e.(element.AlwaysIterator); ok {
			it.IterateAlways()
		}
	}
	// Elements registered by IterateAlways get their hooks before any
	// connected pass sees them.
	if d.syncElements() {
		d.metrics.SetElements(d.elements.Len())
	}

	traffic := d.iterateNetwork(now)
	d.metrics.ObserveTick(traffic)

	if now.Sub(d.lastSave) >= d.cfg.SaveStateInterval {
		d.saveState(context.Background())
	}
}

// iterateNetwork advances the network and, in normal mode with the link up,
// the protocol layers. It reports whether an element sent traffic.
func (d *Device) iterateNetwork(now time.Time) bool {
	netOK := d.network.Iterate()
	d.metrics.SetNetworkReady(netOK)

	if d.network.PopSetupNeeded() && d.network.Mode() != network.ModeConfig {
		d.logger.Warn("network setup needed, entering config mode")
		d.network.SetConfigMode()
	}

	if d.network.Mode() == network.ModeConfig || !netOK {
		d.setStatus(d.idleStatus())
		return false
	}

	return d.iterateProtocols(now)
}

func (d *Device) iterateProtocols(now time.Time) bool {
	var sender protocol.Sender
	connecting := false

	for _, l := range d.protocols.Selectable() {
		info := d.link(l.Name())
		if !info.backoff.Ready(now) {
			continue
		}

		state := l.Iterate(now)
		d.linksMu.Lock()
		info.state = state
		d.linksMu.Unlock()

		switch state {
		case protocol.LinkFailed:
			d.linkFailed(l, info, now)
		case protocol.LinkConnecting:
			connecting = true
		case protocol.LinkRegistered:
			if !info.registered {
				d.linkRegistered(l, info)
			}
			if sender == nil {
				sender = l.Sender()
			}
		}

		if l.IsNetworkRestartRequested() {
			d.restartNetwork(l.Name())
			return false
		}
	}

	switch {
	case sender != nil:
		d.setStatus(StatusRegistered)
		return d.iterateConnected(sender)
	case connecting:
		d.setStatus(StatusRegisterInProgress)
	default:
		d.setStatus(StatusNetworkDisconnected)
	}
	return false
}

func (d *Device) link(name string) *linkInfo {
	d.linksMu.Lock()
	defer d.linksMu.Unlock()
	info, ok := d.links[name]
	if !ok {
		info = &linkInfo{}
		d.links[name] = info
	}
	return info
}

func (d *Device) linkFailed(l protocol.Layer, info *linkInfo, now time.Time) {
	d.linksMu.Lock()
	info.registered = false
	info.backoff.Failed(now, l.ConnectionFailTime())
	failures := info.backoff.Failures()
	d.linksMu.Unlock()

	d.metrics.IncConnectionFailure(l.Name())
	d.metrics.SetProtocolRegistered(l.Name(), false)
	d.logger.Warn("protocol connection failed",
		"layer", l.Name(),
		"failures", failures,
		"retry_in", l.ConnectionFailTime(),
	)
}

func (d *Device) linkRegistered(l protocol.Layer, info *linkInfo) {
	d.linksMu.Lock()
	info.registered = true
	info.backoff.Reset()
	d.linksMu.Unlock()

	d.metrics.SetProtocolRegistered(l.Name(), true)
	d.logger.Info("protocol registered", "layer", l.Name())

	for _, e := range d.initializedElements() {
		if r, ok := e.(element.RegistrationListener); ok {
			r.OnRegistered(l)
		}
	}
}

// iterateConnected visits elements from the round-robin cursor until one
// reports TrafficSent. The next tick starts after that element.
func (d *Device) iterateConnected(sender protocol.Sender) bool {
	all := d.initializedElements()
	n := len(all)
	if n == 0 {
		return false
	}
	start := d.cursor % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if element.IterateConnected(all[idx], sender) == element.TrafficSent {
			d.cursor = idx + 1
			return true
		}
	}
	return false
}

// disconnectProtocols is the network manager's disconnect hook. Every
// layer that had a session or attempt counts a failed attempt.
func (d *Device) disconnectProtocols() {
	now := d.now()
	for _, l := range d.protocols.Layers() {
		l.Disconnect()
		info := d.link(l.Name())

		d.linksMu.Lock()
		active := info.registered || info.state == protocol.LinkConnecting
		info.registered = false
		info.state = protocol.LinkIdle
		if active {
			info.backoff.Failed(now, l.ConnectionFailTime())
		}
		d.linksMu.Unlock()

		if active {
			d.metrics.SetProtocolRegistered(l.Name(), false)
		}
	}
}

func (d *Device) restartNetwork(layer string) {
	d.logger.Info("restarting network", "requested_by", layer)
	d.network.Disable()
	if err := d.network.Setup(); err != nil {
		d.logger.Error("network setup failed", "error", err)
	}
	d.setStatus(StatusNetworkDisconnected)
}

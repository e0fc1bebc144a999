package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-device/internal/element"
	"github.com/nerrad567/gray-logic-device/internal/network"
	"github.com/nerrad567/gray-logic-device/internal/protocol"
	"github.com/nerrad567/gray-logic-device/internal/storage"
)

// KeyGUID is the configuration key holding the device GUID.
const KeyGUID = "device_guid"

// Default intervals.
const (
	DefaultLoopInterval      = 10 * time.Millisecond
	DefaultTimerInterval     = 10 * time.Millisecond
	DefaultFastTimerInterval = time.Millisecond
	DefaultSaveStateInterval = 30 * time.Second
	DefaultCommitTimeout     = 5 * time.Second
)

// Config holds the device identity and loop timing.
type Config struct {
	Name            string
	SoftwareVersion string

	// HostnamePrefix and HostnameMACBytes build the network hostname,
	// e.g. "SUPLA-" and 3 give SUPLA-DDEEFF.
	HostnamePrefix   string
	HostnameMACBytes int

	LoopInterval      time.Duration
	TimerInterval     time.Duration
	FastTimerInterval time.Duration
	SaveStateInterval time.Duration
	CommitTimeout     time.Duration
}

func (c *Config) applyDefaults() {
	if c.HostnamePrefix == "" {
		c.HostnamePrefix = "SUPLA-"
	}
	if c.HostnameMACBytes == 0 {
		c.HostnameMACBytes = 3
	}
	if c.LoopInterval <= 0 {
		c.LoopInterval = DefaultLoopInterval
	}
	if c.TimerInterval <= 0 {
		c.TimerInterval = DefaultTimerInterval
	}
	if c.FastTimerInterval <= 0 {
		c.FastTimerInterval = DefaultFastTimerInterval
	}
	if c.SaveStateInterval <= 0 {
		c.SaveStateInterval = DefaultSaveStateInterval
	}
	if c.CommitTimeout <= 0 {
		c.CommitTimeout = DefaultCommitTimeout
	}
}

// Logger defines the logging interface used by the Device.
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

// Metrics receives runtime counters. infrastructure/metrics implements it.
type Metrics interface {
	ObserveTick(traffic bool)
	SetElements(n int)
	SetNetworkReady(ready bool)
	SetProtocolRegistered(layer string, registered bool)
	IncConnectionFailure(layer string)
	IncServerRequest(kind string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveTick(bool)                   {}
func (noopMetrics) SetElements(int)                    {}
func (noopMetrics) SetNetworkReady(bool)               {}
func (noopMetrics) SetProtocolRegistered(string, bool) {}
func (noopMetrics) IncConnectionFailure(string)        {}
func (noopMetrics) IncServerRequest(string)            {}

// linkInfo is the main loop bookkeeping for one protocol layer.
type linkInfo struct {
	backoff    protocol.Backoff
	registered bool
	state      protocol.LinkState
}

// Device is the orchestrator of one device.
type Device struct {
	cfg       Config
	elements  *element.Registry
	network   *network.Manager
	protocols *protocol.Registry
	config    storage.Config
	state     storage.State

	logger  Logger
	metrics Metrics
	now     func() time.Time

	guid      string
	startedAt time.Time
	status    atomic.Int32
	running   atomic.Bool

	// initialized counts elements whose config/state/init hooks have run.
	// Timer goroutines only visit elements below it.
	initialized atomic.Int64

	// Main loop state. linksMu guards links for Status readers.
	linksMu  sync.RWMutex
	links    map[string]*linkInfo
	cursor   int
	lastSave time.Time

	control chan func()

	listenersMu sync.RWMutex
	listeners   []func(Status)

	restartHook func()
}

// New creates a device over its registries and storages.
func New(cfg Config, elements *element.Registry, net *network.Manager, protocols *protocol.Registry,
	config storage.Config, state storage.State) *Device {
	cfg.applyDefaults()
	d := &Device{
		cfg:       cfg,
		elements:  elements,
		network:   net,
		protocols: protocols,
		config:    config,
		state:     state,
		logger:    noopLogger{},
		metrics:   noopMetrics{},
		now:       time.Now,
		links:     make(map[string]*linkInfo),
		control:   make(chan func(), 16),
	}
	d.status.Store(int32(StatusInitializing))
	net.OnDisconnectProtocols(d.disconnectProtocols)
	return d
}

// SetLogger sets the logger.
func (d *Device) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// SetMetrics sets the metrics sink.
func (d *Device) SetMetrics(m Metrics) {
	if m != nil {
		d.metrics = m
	}
}

// SetClock replaces time.Now, for tests.
func (d *Device) SetClock(now func() time.Time) {
	d.now = now
}

// OnRestartRequested registers the hook run after a server-issued restart
// has flushed state. The process supervisor performs the actual restart.
func (d *Device) OnRestartRequested(fn func()) {
	d.restartHook = fn
}

// AddStatusListener registers fn to be called from the main loop whenever
// the status changes. fn must not block.
func (d *Device) AddStatusListener(fn func(Status)) {
	d.listenersMu.Lock()
	d.listeners = append(d.listeners, fn)
	d.listenersMu.Unlock()
}

// Elements returns the element registry.
func (d *Device) Elements() *element.Registry { return d.elements }

// Network returns the network manager.
func (d *Device) Network() *network.Manager { return d.network }

// Protocols returns the protocol registry.
func (d *Device) Protocols() *protocol.Registry { return d.protocols }

// GUID returns the persisted device GUID.
func (d *Device) GUID() string { return d.guid }

// Hostname returns the generated network hostname.
func (d *Device) Hostname() string { return d.network.Hostname() }

// Begin loads configuration, brings up every registered element and starts
// the network. Failures other than storage errors are logged, not returned:
// a device with broken settings still boots into config mode.
func (d *Device) Begin(ctx context.Context) error {
	d.startedAt = d.now()
	d.lastSave = d.startedAt

	if err := d.network.LoadConfig(d.config); err != nil {
		d.logger.Warn("network config load failed", "error", err)
	}
	if hostname, err := d.network.SetHostname(d.cfg.HostnamePrefix, d.cfg.HostnameMACBytes); err != nil {
		d.logger.Warn("hostname not generated", "error", err)
	} else {
		d.logger.Info("hostname set", "hostname", hostname)
	}

	if err := d.loadGUID(ctx); err != nil {
		return err
	}

	selectable := d.protocols.LoadConfig(d.config)
	for _, l := range d.protocols.Layers() {
		d.links[l.Name()] = &linkInfo{}
	}

	d.elements.ClearInvalidPtr()
	d.initElements()
	d.syncElements()
	d.metrics.SetElements(d.elements.Len())

	if err := d.commitConfig(ctx); err != nil {
		d.logger.Warn("config commit failed", "error", err)
	}

	if selectable == 0 {
		d.logger.Warn("no selectable protocol, entering config mode")
		d.network.SetConfigMode()
		d.setStatus(StatusMissingCredentials)
	} else {
		d.setStatus(StatusNetworkDisconnected)
	}

	if err := d.network.Setup(); err != nil {
		d.logger.Error("network setup failed", "error", err)
	}

	d.logger.Info("device started",
		"name", d.cfg.Name,
		"guid", d.guid,
		"elements", d.elements.Len(),
		"selectable_protocols", selectable,
	)
	return nil
}

// loadGUID reads the device GUID, generating and persisting one on first boot.
func (d *Device) loadGUID(ctx context.Context) error {
	raw, err := d.config.GetBlob(KeyGUID)
	if err == nil {
		id, perr := uuid.FromBytes(raw)
		if perr == nil {
			d.guid = id.String()
			return nil
		}
		d.logger.Warn("stored device GUID is corrupt, regenerating", "error", perr)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("reading device GUID: %w", err)
	}

	id := uuid.New()
	b, _ := id.MarshalBinary() //nolint:errcheck // MarshalBinary never fails for uuid.UUID
	if err := d.config.SetBlob(KeyGUID, b); err != nil {
		return fmt.Errorf("storing device GUID: %w", err)
	}
	if err := d.commitConfig(ctx); err != nil {
		return fmt.Errorf("storing device GUID: %w", err)
	}
	d.guid = id.String()
	d.logger.Info("device GUID generated", "guid", d.guid)
	return nil
}

// initElements runs config, state and init hooks for every element not yet
// initialised, each phase over all of them before the next.
func (d *Device) initElements() {
	all := d.elements.Snapshot()
	from := int(d.initialized.Load())
	if from >= len(all) {
		return
	}
	pending := all[from:]

	for _, e := range pending {
		if l, ok := e.(element.ConfigLoader); ok {
			l.OnLoadConfig(d.config)
		}
	}
	for _, e := range pending {
		if l, ok := e.(element.StateLoader); ok {
			l.OnLoadState(d.state)
		}
	}
	for _, e := range pending {
		if i, ok := e.(element.Initializer); ok {
			i.OnInit()
		}
	}
	d.initialized.Store(int64(len(all)))
	if from > 0 {
		d.logger.Info("late elements initialised", "count", len(pending))
	}
}

// syncElements initialises elements registered since the staleness flag was
// last cleared. Hooks may register further elements, so it repeats until the
// flag stays clear. It reports whether anything was initialised.
func (d *Device) syncElements() bool {
	synced := false
	for d.elements.IsInvalidPtrSet() {
		d.elements.ClearInvalidPtr()
		d.initElements()
		synced = true
	}
	return synced
}

func (d *Device) commitConfig(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.CommitTimeout)
	defer cancel()
	return d.config.Commit(ctx)
}

// saveState runs OnSaveState on every element and commits both storages.
func (d *Device) saveState(ctx context.Context) {
	for _, e := range d.initializedElements() {
		if s, ok := e.(element.StateSaver); ok {
			s.OnSaveState(d.state)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.CommitTimeout)
	defer cancel()
	if err := d.state.Commit(ctx); err != nil {
		d.logger.Warn("state commit failed", "error", err)
	}
	if err := d.config.Commit(ctx); err != nil {
		d.logger.Warn("config commit failed", "error", err)
	}
	d.lastSave = d.now()
}

package mqttlayer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-device/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-device/internal/protocol"
	"github.com/nerrad567/gray-logic-device/internal/storage"
)

// Name is the layer name used in the protocol registry.
const Name = "mqtt"

const (
	// failTime is the fixed wait after a failed connection attempt.
	failTime = 60 * time.Second

	// restartAfterFailures consecutive failures request a network restart.
	restartAfterFailures = 5

	// inboxSize bounds queued inbound commands between iterations.
	inboxSize = 64
)

// Identity supplies the device identity used for the session.
// network.Manager implements it.
type Identity interface {
	Hostname() string
	RootCA() []byte
	// SSLEnabled is the device-wide TLS toggle. When false the layer dials
	// plain MQTT even if mqtt_tls is set.
	SSLEnabled() bool
}

// Pending is an in-flight connection attempt.
type Pending interface {
	Done() bool
	Err() error
}

// Conn is the broker connection the layer drives.
type Conn interface {
	Start() Pending
	IsConnected() bool
	Track(topic string, qos byte, handler mqtt.MessageHandler) error
	PublishAsync(topic string, payload []byte, qos byte, retained bool) error
	Close() error
}

// Dialer builds a connection for the given options.
type Dialer func(opts mqtt.Options) (Conn, error)

// Logger is the logging interface used by the layer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

type pahoConn struct {
	*mqtt.Client
}

func (c pahoConn) Start() Pending { return c.ConnectAsync() }

// DialPaho is the default Dialer backed by infrastructure/mqtt.
func DialPaho(opts mqtt.Options) (Conn, error) {
	c, err := mqtt.New(opts)
	if err != nil {
		return nil, err
	}
	return pahoConn{c}, nil
}

type message struct {
	topic   string
	payload []byte
}

// Layer is the MQTT protocol layer.
type Layer struct {
	identity   Identity
	dispatcher protocol.Dispatcher
	dial       Dialer
	logger     Logger

	mu       sync.RWMutex
	settings Settings
	loaded   bool

	// Session state, main loop only.
	conn     Conn
	attempt  Pending
	topics   mqtt.Topics
	failures int

	registered atomic.Bool
	restart    atomic.Bool
	dropped    atomic.Uint64
	inbox      chan message
}

var _ protocol.Layer = (*Layer)(nil)

// New creates the layer. The dispatcher receives decoded server requests.
func New(identity Identity, dispatcher protocol.Dispatcher) *Layer {
	return &Layer{
		identity:   identity,
		dispatcher: dispatcher,
		dial:       DialPaho,
		logger:     noopLogger{},
		settings:   DefaultSettings(),
		inbox:      make(chan message, inboxSize),
	}
}

// SetLogger sets the logger.
func (l *Layer) SetLogger(logger Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// SetDialer replaces the connection factory.
func (l *Layer) SetDialer(d Dialer) {
	if d != nil {
		l.dial = d
	}
}

// Name implements protocol.Layer.
func (l *Layer) Name() string { return Name }

// Settings returns a copy of the loaded settings.
func (l *Layer) Settings() Settings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.settings
}

// OnLoadConfig reads the mqtt_* keys. A change of server or credentials on
// a loaded layer requests a network restart and drops the session.
func (l *Layer) OnLoadConfig(cfg storage.Config) error {
	s, err := LoadSettings(cfg)
	if err != nil {
		return err
	}

	l.mu.Lock()
	changed := l.loaded && s.credentialsDiffer(l.settings)
	l.settings = s
	l.loaded = true
	l.mu.Unlock()

	if changed {
		l.logger.Info("mqtt credentials changed, requesting network restart")
		l.restart.Store(true)
		l.Disconnect()
	}
	return nil
}

// VerifyConfig implements protocol.Layer.
func (l *Layer) VerifyConfig() error {
	return l.Settings().Verify()
}

// IsEnabled implements protocol.Layer.
func (l *Layer) IsEnabled() bool {
	return l.Settings().Enabled
}

// IsNetworkRestartRequested reports and clears the restart request.
func (l *Layer) IsNetworkRestartRequested() bool {
	return l.restart.Swap(false)
}

// ConnectionFailTime implements protocol.Layer.
func (l *Layer) ConnectionFailTime() time.Duration {
	return failTime
}

// IsRegistered implements protocol.Layer.
func (l *Layer) IsRegistered() bool {
	return l.registered.Load()
}

// Dropped returns the number of inbound messages discarded because the
// queue was full.
func (l *Layer) Dropped() uint64 {
	return l.dropped.Load()
}

// Sender implements protocol.Layer.
func (l *Layer) Sender() protocol.Sender {
	return sender{l}
}

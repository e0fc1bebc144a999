package mqttlayer

import (
	"time"

	"github.com/nerrad567/gray-logic-device/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-device/internal/protocol"
)

// Iterate advances the session and dispatches queued server requests.
// It never blocks on the broker.
func (l *Layer) Iterate(_ time.Time) protocol.LinkState {
	if !l.IsEnabled() {
		return protocol.LinkIdle
	}

	if l.conn == nil {
		if err := l.connect(); err != nil {
			l.logger.Warn("mqtt connect failed", "error", err)
			l.fail()
			return protocol.LinkFailed
		}
		return protocol.LinkConnecting
	}

	if l.attempt != nil {
		if !l.attempt.Done() {
			return protocol.LinkConnecting
		}
		err := l.attempt.Err()
		l.attempt = nil
		if err != nil {
			l.logger.Warn("mqtt connection attempt failed", "error", err, "failures", l.failures+1)
			l.fail()
			return protocol.LinkFailed
		}
		l.failures = 0
		l.registered.Store(true)
		l.logger.Info("mqtt registered", "broker", l.Settings().Server, "base", l.topics.Base())
	}

	if !l.conn.IsConnected() {
		l.logger.Warn("mqtt connection lost")
		l.fail()
		return protocol.LinkFailed
	}

	l.drain()
	return protocol.LinkRegistered
}

func (l *Layer) connect() error {
	s := l.Settings()
	s.TLS = s.TLS && l.identity.SSLEnabled()
	hostname := l.identity.Hostname()
	l.topics = mqtt.NewTopics(hostname)

	opts := mqtt.Options{
		Server:      s.Server,
		Port:        s.ResolvedPort(),
		ClientID:    hostname,
		TLS:         s.TLS,
		QoS:         s.QoS,
		StatusTopic: l.topics.Status(),
	}
	if s.Auth {
		opts.Username = s.User
		opts.Password = s.Pass
	}
	if s.TLS {
		opts.RootCA = l.identity.RootCA()
	}

	conn, err := l.dial(opts)
	if err != nil {
		return err
	}
	for _, topic := range []string{
		l.topics.AllChannelCommands(),
		l.topics.AllChannelConfigCommands(),
		l.topics.CalCfg(),
		l.topics.DeviceConfig(),
	} {
		if err := conn.Track(topic, s.QoS, l.enqueue); err != nil {
			conn.Close() //nolint:errcheck // Abandoning a connection that never opened
			return err
		}
	}

	l.conn = conn
	l.attempt = conn.Start()
	l.logger.Debug("mqtt connecting", "broker", s.Server, "port", opts.Port, "tls", s.TLS)
	return nil
}

// fail closes the session and counts a failed attempt.
func (l *Layer) fail() {
	l.Disconnect()
	l.failures++
	if l.failures >= restartAfterFailures {
		l.logger.Info("mqtt failing repeatedly, requesting network restart", "failures", l.failures)
		l.failures = 0
		l.restart.Store(true)
	}
}

// Disconnect ends the session and discards queued requests.
func (l *Layer) Disconnect() {
	if l.conn != nil {
		l.conn.Close() //nolint:errcheck // Close never fails for a dropped session
		l.conn = nil
	}
	l.attempt = nil
	l.registered.Store(false)
	for {
		select {
		case <-l.inbox:
		default:
			return
		}
	}
}

// enqueue runs on paho goroutines.
func (l *Layer) enqueue(topic string, payload []byte) error {
	select {
	case l.inbox <- message{topic: topic, payload: payload}:
	default:
		l.dropped.Add(1)
	}
	return nil
}

func (l *Layer) drain() {
	for {
		select {
		case m := <-l.inbox:
			l.handle(m)
		default:
			return
		}
	}
}

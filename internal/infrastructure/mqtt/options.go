package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time a single connection attempt may take.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Options describes a broker connection.
type Options struct {
	Server   string
	Port     int
	ClientID string
	Username string
	Password string

	// TLS selects ssl:// and verifies the broker against RootCA.
	// An empty RootCA falls back to the system pool.
	TLS    bool
	RootCA []byte

	// QoS is the default level for status messages.
	QoS byte

	// StatusTopic receives the retained online/offline status and the LWT.
	// Empty disables both.
	StatusTopic string

	// AutoReconnect enables paho's reconnect loop. Protocol layers leave it
	// off and retry on their own schedule.
	AutoReconnect bool

	// ConnectTimeout bounds one connection attempt. Zero means 10s.
	ConnectTimeout time.Duration
}

// BrokerURL returns the paho broker URL for the options.
func (o Options) BrokerURL() string {
	scheme := "tcp"
	if o.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, o.Server, o.Port)
}

func (o Options) validate() error {
	if o.Server == "" {
		return fmt.Errorf("%w: server is empty", ErrInvalidOptions)
	}
	if o.Port < 1 || o.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidOptions, o.Port)
	}
	if o.QoS > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// buildClientOptions creates paho MQTT options from the device options.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - TLS configuration with the device root CA (if enabled)
//   - Clean session mode
func buildClientOptions(o Options) (*pahomqtt.ClientOptions, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(o.BrokerURL())
	opts.SetClientID(o.ClientID)

	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(o.AutoReconnect)
	opts.SetConnectRetry(false)

	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(timeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if o.TLS {
		tlsConfig := &tls.Config{
			MinVersion: tlsMinVersion,
			ServerName: o.Server,
		}
		if len(o.RootCA) > 0 {
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(o.RootCA) {
				return nil, ErrInvalidRootCA
			}
			tlsConfig.RootCAs = pool
		}
		opts.SetTLSConfig(tlsConfig)
	}

	if o.StatusTopic != "" {
		configureLWT(opts, o.StatusTopic, o.ClientID)
	}

	return opts, nil
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The broker publishes it retained if the device drops off without a
// graceful Close.
func configureLWT(opts *pahomqtt.ClientOptions, topic, clientID string) {
	willPayload := fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"unexpected_disconnect","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)

	opts.SetWill(topic, willPayload, 1, true)
}

// buildOnlinePayload creates the JSON payload for online status messages.
func buildOnlinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"online","client_id":"%s","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// buildOfflinePayload creates the JSON payload for graceful offline status.
func buildOfflinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"graceful_shutdown","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}

package mqttlayer

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-device/internal/proto"
	"github.com/nerrad567/gray-logic-device/internal/protocol"
	"github.com/nerrad567/gray-logic-device/internal/storage"
)

// Persisted configuration keys.
const (
	KeyServer  = "mqtt_server"
	KeyPort    = "mqtt_port"
	KeyUser    = "mqtt_user"
	KeyPass    = "mqtt_pass"
	KeyQoS     = "mqtt_qos"
	KeyTLS     = "mqtt_tls"
	KeyAuth    = "mqtt_auth"
	KeyRetain  = "mqtt_retain"
	KeyEnabled = "mqtt_enabled"
)

// Broker ports used when the stored port is -1.
const (
	DefaultPort    = 1883
	DefaultTLSPort = 8883
)

// Settings are the persisted MQTT connection parameters.
type Settings struct {
	Server  string
	Port    int32
	User    string
	Pass    string
	QoS     uint8
	TLS     bool
	Auth    bool
	Retain  bool
	Enabled bool
}

// DefaultSettings returns the values used for keys that were never written.
func DefaultSettings() Settings {
	return Settings{Port: -1, Auth: true, Enabled: true}
}

// ResolvedPort returns the broker port, substituting the protocol default
// for -1.
func (s Settings) ResolvedPort() int {
	if s.Port == -1 {
		if s.TLS {
			return DefaultTLSPort
		}
		return DefaultPort
	}
	return int(s.Port)
}

// Verify checks the settings are complete enough to attempt a connection.
func (s Settings) Verify() error {
	if s.Server == "" {
		return fmt.Errorf("%w: mqtt server is empty", protocol.ErrInvalidConfig)
	}
	if len(s.Server) >= proto.ServerNameMaxSize {
		return fmt.Errorf("%w: mqtt server name too long", protocol.ErrInvalidConfig)
	}
	if port := s.ResolvedPort(); port < 1 || port > 65535 {
		return fmt.Errorf("%w: mqtt port %d out of range", protocol.ErrInvalidConfig, port)
	}
	if s.QoS > 2 {
		return fmt.Errorf("%w: mqtt qos %d", protocol.ErrInvalidConfig, s.QoS)
	}
	if s.Auth {
		if s.User == "" || s.Pass == "" {
			return fmt.Errorf("%w: mqtt credentials required", protocol.ErrInvalidConfig)
		}
		if len(s.User) >= proto.MQTTUsernameMaxSize || len(s.Pass) >= proto.MQTTPasswordMaxSize {
			return fmt.Errorf("%w: mqtt credentials too long", protocol.ErrInvalidConfig)
		}
	}
	return nil
}

func (s Settings) credentialsDiffer(o Settings) bool {
	return s.Server != o.Server || s.User != o.User || s.Pass != o.Pass || s.Auth != o.Auth
}

// Save writes the settings to cfg. The caller commits.
func (s Settings) Save(cfg storage.Config) error {
	writes := []error{
		cfg.SetString(KeyServer, s.Server),
		cfg.SetInt32(KeyPort, s.Port),
		cfg.SetString(KeyUser, s.User),
		cfg.SetString(KeyPass, s.Pass),
		cfg.SetUInt8(KeyQoS, s.QoS),
		cfg.SetUInt8(KeyTLS, boolByte(s.TLS)),
		cfg.SetUInt8(KeyAuth, boolByte(s.Auth)),
		cfg.SetUInt8(KeyRetain, boolByte(s.Retain)),
		cfg.SetUInt8(KeyEnabled, boolByte(s.Enabled)),
	}
	return errors.Join(writes...)
}

// LoadSettings reads the settings from cfg. Missing keys keep their defaults.
func LoadSettings(cfg storage.Config) (Settings, error) {
	s := DefaultSettings()
	var err error
	if s.Server, err = getString(cfg, KeyServer, s.Server); err != nil {
		return s, err
	}
	if s.Port, err = getInt32(cfg, KeyPort, s.Port); err != nil {
		return s, err
	}
	if s.User, err = getString(cfg, KeyUser, s.User); err != nil {
		return s, err
	}
	if s.Pass, err = getString(cfg, KeyPass, s.Pass); err != nil {
		return s, err
	}
	if s.QoS, err = getUInt8(cfg, KeyQoS, s.QoS); err != nil {
		return s, err
	}
	for _, f := range []struct {
		key string
		dst *bool
	}{
		{KeyTLS, &s.TLS},
		{KeyAuth, &s.Auth},
		{KeyRetain, &s.Retain},
		{KeyEnabled, &s.Enabled},
	} {
		v, err := getUInt8(cfg, f.key, boolByte(*f.dst))
		if err != nil {
			return s, err
		}
		*f.dst = v != 0
	}
	return s, nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func getString(cfg storage.Config, key, def string) (string, error) {
	v, err := cfg.GetString(key)
	if errors.Is(err, storage.ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("reading %s: %w", key, err)
	}
	return v, nil
}

func getInt32(cfg storage.Config, key string, def int32) (int32, error) {
	v, err := cfg.GetInt32(key)
	if errors.Is(err, storage.ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("reading %s: %w", key, err)
	}
	return v, nil
}

func getUInt8(cfg storage.Config, key string, def uint8) (uint8, error) {
	v, err := cfg.GetUInt8(key)
	if errors.Is(err, storage.ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("reading %s: %w", key, err)
	}
	return v, nil
}

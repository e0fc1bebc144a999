package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "GRAYLOGIC_DEVICE_"

// Config is the root configuration structure for a Gray Logic device.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Storage   StorageConfig   `yaml:"storage"`
	Network   NetworkConfig   `yaml:"network"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Elements  ElementsConfig  `yaml:"elements"`
	API       APIConfig       `yaml:"api"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig contains the device identity.
type DeviceConfig struct {
	Name             string `yaml:"name"`
	HostnamePrefix   string `yaml:"hostname_prefix"`
	HostnameMACBytes int    `yaml:"hostname_mac_bytes"`
}

// StorageConfig contains SQLite database settings.
type StorageConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// NetworkConfig selects and configures the network interfaces.
type NetworkConfig struct {
	// Interface is "ethernet" or "wifi".
	Interface      string     `yaml:"interface"`
	EthernetLink   string     `yaml:"ethernet_link"`
	WiFi           WiFiConfig `yaml:"wifi"`
	StaticIP       string     `yaml:"static_ip"`
	PrefixLen      int        `yaml:"prefix_len"`
	IPSetupTimeout int        `yaml:"ip_setup_timeout"`
	SSL            bool       `yaml:"ssl"`
	RootCAFile     string     `yaml:"root_ca_file"`
	MDNS           bool       `yaml:"mdns"`
}

// WiFiConfig contains the WiFi link and supplicant settings.
type WiFiConfig struct {
	Link           string `yaml:"link"`
	SupplicantPath string `yaml:"supplicant_path"`
	ConfPath       string `yaml:"conf_path"`
	SSID           string `yaml:"ssid"`
	Password       string `yaml:"password"`
}

// MQTTConfig seeds the MQTT protocol settings on first boot. Once the
// device has stored its own settings these values are ignored.
type MQTTConfig struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`
	TLS      bool   `yaml:"tls"`
	Auth     bool   `yaml:"auth"`
	Retain   bool   `yaml:"retain"`
	Enabled  bool   `yaml:"enabled"`
}

// SchedulerConfig contains the main loop timing, in milliseconds except
// where noted.
type SchedulerConfig struct {
	LoopInterval      int `yaml:"loop_interval"`
	TimerInterval     int `yaml:"timer_interval"`
	FastTimerInterval int `yaml:"fast_timer_interval"`
	// SaveStateInterval is in seconds.
	SaveStateInterval int `yaml:"save_state_interval"`
}

// ElementsConfig lists the virtual elements to register.
type ElementsConfig struct {
	Relays      []int32 `yaml:"relays"`
	Thermostats []int32 `yaml:"thermostats"`
}

// APIConfig contains the local provisioning API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	// PasswordHash is an argon2id PHC string guarding mutating routes.
	PasswordHash string `yaml:"password_hash"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
	// SampleInterval is how often channel values are recorded, in seconds.
	SampleInterval int `yaml:"sample_interval"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_DEVICE_SECTION_KEY
// For example: GRAYLOGIC_DEVICE_STORAGE_PATH, GRAYLOGIC_DEVICE_MQTT_SERVER
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:             "Gray Logic Device",
			HostnamePrefix:   "SUPLA-",
			HostnameMACBytes: 3,
		},
		Storage: StorageConfig{
			Path:        "./data/device.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Network: NetworkConfig{
			Interface:      "ethernet",
			EthernetLink:   "eth0",
			PrefixLen:      24,
			IPSetupTimeout: 60,
			SSL:            true,
			MDNS:           true,
			WiFi: WiFiConfig{
				Link:           "wlan0",
				SupplicantPath: "/usr/sbin/wpa_supplicant",
				ConfPath:       "./data/wpa_supplicant.conf",
			},
		},
		MQTT: MQTTConfig{
			Port:    -1,
			QoS:     0,
			Auth:    true,
			Enabled: true,
		},
		Scheduler: SchedulerConfig{
			LoopInterval:      10,
			TimerInterval:     10,
			FastTimerInterval: 1,
			SaveStateInterval: 30,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:      100,
			FlushInterval:  10,
			SampleInterval: 60,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_DEVICE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("NAME", &cfg.Device.Name)
	setString("STORAGE_PATH", &cfg.Storage.Path)

	setString("NETWORK_INTERFACE", &cfg.Network.Interface)
	setString("WIFI_SSID", &cfg.Network.WiFi.SSID)
	setString("WIFI_PASSWORD", &cfg.Network.WiFi.Password)

	setString("MQTT_SERVER", &cfg.MQTT.Server)
	setInt("MQTT_PORT", &cfg.MQTT.Port)
	setString("MQTT_USERNAME", &cfg.MQTT.Username)
	setString("MQTT_PASSWORD", &cfg.MQTT.Password)

	setString("API_HOST", &cfg.API.Host)
	setInt("API_PORT", &cfg.API.Port)
	setString("API_PASSWORD_HASH", &cfg.API.PasswordHash)

	setString("INFLUXDB_TOKEN", &cfg.InfluxDB.Token)
	setString("LOG_LEVEL", &cfg.Logging.Level)
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Storage.Path == "" {
		errs = append(errs, "storage.path is required")
	}

	const hostnameMax = 31
	if len(c.Device.HostnamePrefix) > hostnameMax-2*c.Device.HostnameMACBytes {
		errs = append(errs, "device.hostname_prefix leaves no room for the MAC suffix")
	}
	if c.Device.HostnameMACBytes < 0 || c.Device.HostnameMACBytes > 6 {
		errs = append(errs, "device.hostname_mac_bytes must be between 0 and 6")
	}

	switch strings.ToLower(c.Network.Interface) {
	case "ethernet", "wifi":
	default:
		errs = append(errs, "network.interface must be ethernet or wifi")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Port != -1 && (c.MQTT.Port < 1 || c.MQTT.Port > 65535) {
		errs = append(errs, "mqtt.port must be -1 or between 1 and 65535")
	}

	if c.Scheduler.LoopInterval <= 0 || c.Scheduler.TimerInterval <= 0 || c.Scheduler.FastTimerInterval <= 0 {
		errs = append(errs, "scheduler intervals must be positive")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// LoopInterval returns the main loop period.
func (c *Config) LoopInterval() time.Duration {
	return time.Duration(c.Scheduler.LoopInterval) * time.Millisecond
}

// TimerInterval returns the timer hook period.
func (c *Config) TimerInterval() time.Duration {
	return time.Duration(c.Scheduler.TimerInterval) * time.Millisecond
}

// FastTimerInterval returns the fast timer hook period.
func (c *Config) FastTimerInterval() time.Duration {
	return time.Duration(c.Scheduler.FastTimerInterval) * time.Millisecond
}

// SaveStateInterval returns the state save period.
func (c *Config) SaveStateInterval() time.Duration {
	return time.Duration(c.Scheduler.SaveStateInterval) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

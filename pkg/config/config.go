// Package config loads and validates the trackerd configuration file.
//
// Every operational parameter of the device lives here: credentials,
// hardware ports, timing intervals and feature toggles. The file is read
// once at startup; components receive the resulting Config by value and
// never reload it.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the full trackerd configuration.
type Config struct {
	// Network
	WiFiSSID     string `yaml:"wifi_ssid"`
	WiFiPassword string `yaml:"wifi_password"`
	ServerHost   string `yaml:"server_host"`
	PublicOrigin string `yaml:"public_origin"`

	// MQTT uplink
	MQTTBroker      string `yaml:"mqtt_broker"`
	MQTTPort        int    `yaml:"mqtt_port"`
	MQTTUsername    string `yaml:"mqtt_username"`
	MQTTPassword    string `yaml:"mqtt_password"`
	MQTTTopicPrefix string `yaml:"mqtt_topic_prefix"`
	// Pointer so an explicit mqtt_qos: 0 is distinguishable from unset.
	MQTTQoS *int `yaml:"mqtt_qos"`

	// Device identity
	DeviceID    string `yaml:"device_id"`
	DeviceToken string `yaml:"device_token"`

	// Cellular
	APN string `yaml:"apn"`

	// Hardware
	ModemDevice     string `yaml:"modem_device"`
	ModemBaudRate   int    `yaml:"modem_baud_rate"`
	ModemPowerPin   int    `yaml:"modem_power_pin"`
	GPSDevice       string `yaml:"gps_device"`
	GPSBaudRate     int    `yaml:"gps_baud_rate"`
	GPSPowerPin     int    `yaml:"gps_power_pin"`
	PowerCycleAfter int    `yaml:"power_cycle_after"`

	// Timing (milliseconds)
	MovingIntervalMS    int `yaml:"moving_interval_ms"`
	IdleIntervalMS      int `yaml:"idle_interval_ms"`
	HeartbeatIntervalMS int `yaml:"heartbeat_interval_ms"`
	ReconnectDelayMS    int `yaml:"reconnect_delay_ms"`

	// Timeouts (milliseconds)
	GPSTimeoutMS       int `yaml:"gps_timeout_ms"`
	WiFiTimeoutMS      int `yaml:"wifi_timeout_ms"`
	HTTPTimeoutMS      int `yaml:"http_timeout_ms"`
	ATCommandTimeoutMS int `yaml:"at_command_timeout_ms"`

	// Movement
	MovementThresholdM float64 `yaml:"movement_threshold_m"`

	// Offline storage
	MaxOfflineRecords int    `yaml:"max_offline_records"`
	SpoolPath         string `yaml:"spool_path"`

	// Transport failover
	PrimaryBearer string `yaml:"primary_bearer"`
	FailoverAfter int    `yaml:"failover_after"`

	// Feature toggles
	EnableWiFi              bool `yaml:"enable_wifi"`
	EnableLTEFallback       bool `yaml:"enable_lte_fallback"`
	EnableNeo6MFallback     bool `yaml:"enable_neo6m_fallback"`
	EnableOfflineStorage    bool `yaml:"enable_offline_storage"`
	EnableHeartbeat         bool `yaml:"enable_heartbeat"`
	EnableMovementDetection bool `yaml:"enable_movement_detection"`

	// Observability
	LogLevel        string `yaml:"log_level"`
	MetricsListener bool   `yaml:"metrics_listener"`
	MetricsPort     int    `yaml:"metrics_port"`
}

// Load reads the configuration file, applies defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills unset values with the shipped defaults.
func (c *Config) applyDefaults() {
	if c.MQTTPort == 0 {
		c.MQTTPort = 1883
	}
	if c.MQTTTopicPrefix == "" {
		c.MQTTTopicPrefix = "tracker"
	}
	if c.MQTTQoS == nil {
		qos := 1
		c.MQTTQoS = &qos
	}
	if c.ModemDevice == "" {
		c.ModemDevice = "/dev/ttyUSB0"
	}
	if c.ModemBaudRate == 0 {
		c.ModemBaudRate = 115200
	}
	if c.GPSDevice == "" {
		c.GPSDevice = "/dev/ttyUSB1"
	}
	if c.GPSBaudRate == 0 {
		c.GPSBaudRate = 9600
	}
	if c.PowerCycleAfter == 0 {
		c.PowerCycleAfter = 3
	}
	if c.MovingIntervalMS == 0 {
		c.MovingIntervalMS = 15000
	}
	if c.IdleIntervalMS == 0 {
		c.IdleIntervalMS = 60000
	}
	if c.HeartbeatIntervalMS == 0 {
		c.HeartbeatIntervalMS = 60000
	}
	if c.ReconnectDelayMS == 0 {
		c.ReconnectDelayMS = 10000
	}
	if c.GPSTimeoutMS == 0 {
		c.GPSTimeoutMS = 30000
	}
	if c.WiFiTimeoutMS == 0 {
		c.WiFiTimeoutMS = 20000
	}
	if c.HTTPTimeoutMS == 0 {
		c.HTTPTimeoutMS = 15000
	}
	if c.ATCommandTimeoutMS == 0 {
		c.ATCommandTimeoutMS = 5000
	}
	if c.MovementThresholdM == 0 {
		c.MovementThresholdM = 10.0
	}
	if c.MaxOfflineRecords == 0 {
		c.MaxOfflineRecords = 50
	}
	if c.SpoolPath == "" {
		c.SpoolPath = "/var/lib/trackerd/spool.db"
	}
	if c.PrimaryBearer == "" {
		c.PrimaryBearer = "mqtt"
	}
	if c.FailoverAfter == 0 {
		c.FailoverAfter = 3
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.MetricsPort == 0 {
		c.MetricsPort = 9101
	}
}

// Validate enforces the required-value contract. A tracker with missing
// identity or credentials must refuse to start rather than report garbage.
func (c *Config) Validate() error {
	var missing []string

	if c.DeviceID == "" {
		missing = append(missing, "device_id")
	}
	if c.DeviceToken == "" {
		missing = append(missing, "device_token")
	}
	if c.EnableWiFi && c.WiFiSSID == "" {
		missing = append(missing, "wifi_ssid")
	}

	// Endpoint requirements follow the bearers in play, not the WiFi
	// toggle: a selected bearer with no endpoint cannot report anything.
	needServerHost := false
	switch c.PrimaryBearer {
	case "mqtt":
		if c.MQTTBroker == "" {
			missing = append(missing, "mqtt_broker")
		}
	case "http":
		if c.PublicOrigin == "" {
			needServerHost = true
		}
	}
	if c.EnableLTEFallback || c.PrimaryBearer == "cellular" {
		if c.APN == "" {
			missing = append(missing, "apn")
		}
		needServerHost = true
	}
	if needServerHost && c.ServerHost == "" {
		missing = append(missing, "server_host")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch c.PrimaryBearer {
	case "mqtt", "http", "cellular":
	default:
		return fmt.Errorf("invalid primary_bearer %q (mqtt|http|cellular)", c.PrimaryBearer)
	}
	if *c.MQTTQoS < 0 || *c.MQTTQoS > 2 {
		return fmt.Errorf("mqtt_qos must be 0..2, got %d", *c.MQTTQoS)
	}
	if c.MovementThresholdM < 0 {
		return fmt.Errorf("movement_threshold_m must not be negative")
	}
	if c.MaxOfflineRecords < 1 {
		return fmt.Errorf("max_offline_records must be at least 1")
	}
	return nil
}

// QoS returns the MQTT quality-of-service level, defaulting to 1.
func (c *Config) QoS() byte {
	if c.MQTTQoS == nil {
		return 1
	}
	return byte(*c.MQTTQoS)
}

// Duration helpers keep the millisecond fields out of component code.

func (c *Config) MovingInterval() time.Duration {
	return time.Duration(c.MovingIntervalMS) * time.Millisecond
}

func (c *Config) IdleInterval() time.Duration {
	return time.Duration(c.IdleIntervalMS) * time.Millisecond
}

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMS) * time.Millisecond
}

func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMS) * time.Millisecond
}

func (c *Config) GPSTimeout() time.Duration {
	return time.Duration(c.GPSTimeoutMS) * time.Millisecond
}

func (c *Config) WiFiTimeout() time.Duration {
	return time.Duration(c.WiFiTimeoutMS) * time.Millisecond
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMS) * time.Millisecond
}

func (c *Config) ATCommandTimeout() time.Duration {
	return time.Duration(c.ATCommandTimeoutMS) * time.Millisecond
}

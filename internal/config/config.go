// Package config loads the daemon configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/heatpump-blink/internal/gpio"
)

// Config is the root configuration.
type Config struct {
	Device    DeviceConfig  `yaml:"device"`
	GPIO      GPIOConfig    `yaml:"gpio"`
	Blink     BlinkConfig   `yaml:"blink"`
	MQTT      MQTTConfig    `yaml:"mqtt"`
	HTTP      HTTPConfig    `yaml:"http"`
	Logging   LoggingConfig `yaml:"logging"`
	Tick      time.Duration `yaml:"tick"`
	Heartbeat time.Duration `yaml:"heartbeat"` // 0 disables
}

// DeviceConfig is the static device description.
type DeviceConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Icon string `yaml:"icon"`
}

// GPIOConfig selects the LED output line.
type GPIOConfig struct {
	Chip string `yaml:"chip"`
	Pin  int    `yaml:"pin"`
}

// BlinkConfig holds the temperature-to-delay mapping.
type BlinkConfig struct {
	DelayMinMs int  `yaml:"delay_min_ms"`
	DelayMaxMs int  `yaml:"delay_max_ms"`
	TempMin    int  `yaml:"temp_min"`
	TempMax    int  `yaml:"temp_max"`
	Autostart  bool `yaml:"autostart"`
}

// MQTTConfig contains broker connection settings.
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	BufferSize int    `yaml:"buffer_size"` // messages held while disconnected
}

// HTTPConfig configures the status server. Empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures the optional rotating log file.
type LoggingConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is not empty), then HEATPUMP_BLINK_* environment variables, then
// validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Name: "Heat Pump",
			Type: "ACME 9002 Heatpump",
			Icon: "img/chip-small.png",
		},
		GPIO: GPIOConfig{
			Chip: gpio.DefaultChip,
			Pin:  gpio.DefaultPinLED,
		},
		Blink: BlinkConfig{
			DelayMinMs: 50,
			DelayMaxMs: 500,
			TempMin:    0,
			TempMax:    40,
			Autostart:  true,
		},
		MQTT: MQTTConfig{
			Broker:     "tcp://192.168.1.200:1883",
			ClientID:   "heatpump-blink",
			BufferSize: 100,
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
		Logging: LoggingConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Tick:      time.Second,
		Heartbeat: 15 * time.Minute,
	}
}

// Environment variable names.
const (
	EnvBroker       = "HEATPUMP_BLINK_MQTT_BROKER"
	EnvMQTTUsername = "HEATPUMP_BLINK_MQTT_USERNAME"
	EnvMQTTPassword = "HEATPUMP_BLINK_MQTT_PASSWORD"
	EnvPin          = "HEATPUMP_BLINK_GPIO_PIN"
	EnvHTTPAddr     = "HEATPUMP_BLINK_HTTP_ADDR"
	EnvLogFile      = "HEATPUMP_BLINK_LOG_FILE"
)

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvBroker); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv(EnvMQTTUsername); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv(EnvMQTTPassword); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv(EnvPin); v != "" {
		pin, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPin, err)
		}
		cfg.GPIO.Pin = pin
	}
	// HTTP address may legitimately be set to empty to disable the server,
	// so presence rather than value decides.
	if v, ok := os.LookupEnv(EnvHTTPAddr); ok {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv(EnvLogFile); v != "" {
		cfg.Logging.File = v
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.GPIO.Chip == "" {
		errs = append(errs, "gpio.chip is required")
	}
	if c.GPIO.Pin < 0 {
		errs = append(errs, "gpio.pin must not be negative")
	}
	if c.Blink.TempMin == c.Blink.TempMax {
		errs = append(errs, "blink.temp_min and blink.temp_max must differ")
	}
	if c.Blink.DelayMinMs < 0 || c.Blink.DelayMaxMs < 0 {
		errs = append(errs, "blink delays must not be negative")
	}
	if c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required")
	}
	if c.MQTT.BufferSize < 1 {
		errs = append(errs, "mqtt.buffer_size must be at least 1")
	}
	if c.Tick <= 0 {
		errs = append(errs, "tick must be positive")
	}
	if c.Heartbeat < 0 {
		errs = append(errs, "heartbeat must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// StopTimeout is how long shutdown waits for the blink worker: two full
// periods at the slowest configured rate, plus a second of slack.
func (c *Config) StopTimeout() time.Duration {
	slowest := c.Blink.DelayMaxMs
	if c.Blink.DelayMinMs > slowest {
		slowest = c.Blink.DelayMinMs
	}
	return 4*time.Duration(slowest)*time.Millisecond + time.Second
}

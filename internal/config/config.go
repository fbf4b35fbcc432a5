// Package config loads the service configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/f1-telemetry/internal/units"
)

// DefaultPort is the game's default telemetry broadcast port.
const DefaultPort = 20777

// Config is the root of the YAML configuration file. Every field is optional;
// the Get* methods supply defaults for anything left out, so partial files are safe.
type Config struct {
	Port             *int    `yaml:"port,omitempty"`
	BindAddress      *string `yaml:"bind_address,omitempty"`
	RcvBuf           *int    `yaml:"rcv_buf,omitempty"`
	QueueSize        *int    `yaml:"queue_size,omitempty"`
	SubscriberBuffer *int    `yaml:"subscriber_buffer,omitempty"`
	DecodeCorners    *bool   `yaml:"decode_corners,omitempty"`
	HTTPListen       *string `yaml:"http_listen,omitempty"`
	StatsInterval    *string `yaml:"stats_interval,omitempty"` // duration string like "1m"

	CAN  *CANConfig  `yaml:"can,omitempty"`
	Dash *DashConfig `yaml:"dash,omitempty"`
}

// CANConfig enables the CAN bus sink when Device is set.
type CANConfig struct {
	Network string `yaml:"network,omitempty"` // "can" for SocketCAN, "udp" for the multicast emulation
	Device  string `yaml:"device"`
}

// DashConfig enables the serial dash sink when Path is set.
type DashConfig struct {
	Path     string `yaml:"path"`
	BaudRate int    `yaml:"baud_rate,omitempty"`
	DataBits int    `yaml:"data_bits,omitempty"`
	StopBits int    `yaml:"stop_bits,omitempty"`
	Parity   string `yaml:"parity,omitempty"`
	Units    string `yaml:"units,omitempty"` // speed display units: kph, mph or mps
}

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Load reads and validates a YAML config file. Unknown keys are rejected so
// typos do not silently fall back to defaults.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	switch ext := strings.ToLower(filepath.Ext(cleanPath)); ext {
	case ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML config bytes.
func Parse(data []byte) (*Config, error) {
	cfg := Empty()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configured values are usable.
func (c *Config) Validate() error {
	if c.Port != nil && (*c.Port < 0 || *c.Port > 65535) {
		return fmt.Errorf("port must be between 0 and 65535, got %d", *c.Port)
	}
	if c.BindAddress != nil && *c.BindAddress != "" && net.ParseIP(*c.BindAddress) == nil {
		return fmt.Errorf("bind_address %q is not an IP address", *c.BindAddress)
	}
	if c.RcvBuf != nil && *c.RcvBuf < 0 {
		return fmt.Errorf("rcv_buf must be non-negative, got %d", *c.RcvBuf)
	}
	if c.QueueSize != nil && *c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", *c.QueueSize)
	}
	if c.SubscriberBuffer != nil && *c.SubscriberBuffer < 1 {
		return fmt.Errorf("subscriber_buffer must be at least 1, got %d", *c.SubscriberBuffer)
	}
	if c.StatsInterval != nil && *c.StatsInterval != "" {
		d, err := time.ParseDuration(*c.StatsInterval)
		if err != nil {
			return fmt.Errorf("invalid stats_interval '%s': %w", *c.StatsInterval, err)
		}
		if d < 0 {
			return fmt.Errorf("stats_interval must be non-negative, got %s", d)
		}
	}
	if c.CAN != nil && c.CAN.Device == "" {
		return errors.New("can.device is required when the can section is present")
	}
	if c.Dash != nil && c.Dash.Path == "" {
		return errors.New("dash.path is required when the dash section is present")
	}
	if c.Dash != nil && c.Dash.Units != "" && !units.IsValid(c.Dash.Units) {
		return fmt.Errorf("invalid dash.units '%s': must be one of %s", c.Dash.Units, units.GetValidUnitsString())
	}
	return nil
}

// GetPort returns the UDP port to listen on.
func (c *Config) GetPort() int {
	if c.Port == nil {
		return DefaultPort
	}
	return *c.Port
}

// GetBindAddress returns the local IP to bind, "" for all interfaces.
func (c *Config) GetBindAddress() string {
	if c.BindAddress == nil {
		return ""
	}
	return *c.BindAddress
}

// GetRcvBuf returns the OS receive buffer size.
func (c *Config) GetRcvBuf() int {
	if c.RcvBuf == nil {
		return 1 << 20
	}
	return *c.RcvBuf
}

// GetQueueSize returns the listener queue size.
func (c *Config) GetQueueSize() int {
	if c.QueueSize == nil {
		return 256
	}
	return *c.QueueSize
}

// GetSubscriberBuffer returns the per-subscriber buffer size.
func (c *Config) GetSubscriberBuffer() int {
	if c.SubscriberBuffer == nil {
		return 64
	}
	return *c.SubscriberBuffer
}

// GetDecodeCorners reports whether the per-corner group should be decoded.
func (c *Config) GetDecodeCorners() bool {
	if c.DecodeCorners == nil {
		return false
	}
	return *c.DecodeCorners
}

// GetHTTPListen returns the HTTP listen address, "" to disable the API.
func (c *Config) GetHTTPListen() string {
	if c.HTTPListen == nil {
		return ":8080"
	}
	return *c.HTTPListen
}

// GetStatsInterval returns how often stats are logged; 0 disables logging.
func (c *Config) GetStatsInterval() time.Duration {
	if c.StatsInterval == nil || *c.StatsInterval == "" {
		return time.Minute
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil {
		return time.Minute
	}
	return d
}

// GetCANNetwork returns the socketcan network name.
func (c *Config) GetCANNetwork() string {
	if c.CAN == nil || c.CAN.Network == "" {
		return "can"
	}
	return c.CAN.Network
}

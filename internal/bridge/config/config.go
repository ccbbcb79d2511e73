package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// ConfigFormatVersion is the current version of the configuration file format
const ConfigFormatVersion = "0.1.0"

// PairingConfig holds the session creation and reaping windows
type PairingConfig struct {
	QRTimeout       string `toml:"qr_timeout" validate:"required"`       // How long a create call waits for a QR code
	PairingGrace    string `toml:"pairing_grace" validate:"required"`    // How long an unpaired session may live
	JanitorInterval string `toml:"janitor_interval" validate:"required"` // How often dead sessions are reaped
}

func (p *PairingConfig) GetQRTimeout() time.Duration { return mustDuration(p.QRTimeout) }
func (p *PairingConfig) GetPairingGrace() time.Duration { return mustDuration(p.PairingGrace) }
func (p *PairingConfig) GetJanitorInterval() time.Duration { return mustDuration(p.JanitorInterval) }

// DriverConfig holds the automation sidecar settings
type DriverConfig struct {
	URL               string `toml:"url" validate:"required,url"` // Sidecar base URL
	APIKey            string `toml:"api_key"`                     // Optional bearer token for the sidecar
	VersionConstraint string `toml:"version_constraint"`          // Accepted sidecar versions
	RequestTimeout    string `toml:"request_timeout"`             // Per-request timeout, empty for none
}

func (d *DriverConfig) GetRequestTimeout() time.Duration { return mustDuration(d.RequestTimeout) }

// AnalysisConfig holds the downstream analysis service settings
type AnalysisConfig struct {
	URL            string `toml:"url" validate:"required,url"` // Analysis service base URL
	RequestTimeout string `toml:"request_timeout"`             // Per-request timeout, empty for none
}

func (a *AnalysisConfig) GetRequestTimeout() time.Duration { return mustDuration(a.RequestTimeout) }

// ChatFormatConfig controls how transcripts are rendered
type ChatFormatConfig struct {
	Timezone string `toml:"timezone" validate:"required"` // IANA zone used for message timestamps
}

// Location returns the configured time zone.
func (c *ChatFormatConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ConfigParam holds all configuration parameters for the chatbridge service
type ConfigParam struct {
	// Configuration version
	FormatVersion string `toml:"format_version"` // Version of this configuration file format

	// Server configuration
	ServerHostName string `toml:"server_hostname"`                        // Interface to listen on, empty for all
	ServerPort     string `toml:"server_port" validate:"required,number"` // Port for the server
	HandleCORS     bool   `toml:"handle_cors"`                            // Whether to handle CORS
	RequestTimeout string `toml:"request_timeout"`                        // Upper bound for non-streaming requests

	LogLevel         string `toml:"log_level" validate:"omitempty,oneof=trace debug info warn error"` // zerolog level
	MetricsNamespace string `toml:"metrics_namespace" validate:"required"`                            // Prometheus namespace

	Pairing    PairingConfig    `toml:"pairing"`
	Driver     DriverConfig     `toml:"driver"`
	Analysis   AnalysisConfig   `toml:"analysis"`
	ChatFormat ChatFormatConfig `toml:"chat_format"`
}

var cfg *ConfigParam

// Config returns the current configuration
func Config() *ConfigParam {
	return cfg
}

// Default returns the configuration used when no file is given.
func Default() *ConfigParam {
	return &ConfigParam{
		FormatVersion:    ConfigFormatVersion,
		ServerPort:       "3001",
		HandleCORS:       true,
		RequestTimeout:   "60s",
		LogLevel:         "info",
		MetricsNamespace: "chatbridge",
		Pairing: PairingConfig{
			QRTimeout:       "30s",
			PairingGrace:    "2m",
			JanitorInterval: "15s",
		},
		Driver: DriverConfig{
			URL:               "http://localhost:3002",
			VersionConstraint: ">= 1.0.0, < 2.0.0",
			RequestTimeout:    "30s",
		},
		Analysis: AnalysisConfig{
			URL:            "http://localhost:8000",
			RequestTimeout: "45s",
		},
		ChatFormat: ChatFormatConfig{
			Timezone: "UTC",
		},
	}
}

func (c *ConfigParam) GetRequestTimeout() time.Duration { return mustDuration(c.RequestTimeout) }

// ListenAddr returns the address the HTTP server binds to.
func (c *ConfigParam) ListenAddr() string {
	return c.ServerHostName + ":" + c.ServerPort
}

// ParseDuration accepts Go duration syntax ("90s", "1h30m") plus whole days and
// years in the form "<number>d" and "<number>y". An empty string is zero.
func ParseDuration(input string) (time.Duration, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(input); err == nil {
		return d, nil
	}
	if len(input) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", input)
	}

	unit := input[len(input)-1:]
	value, err := strconv.Atoi(input[:len(input)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q", input)
	}

	switch unit {
	case "d":
		return time.Duration(value) * 24 * time.Hour, nil
	case "y":
		// 1 year = 365 days
		return time.Duration(value) * 365 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown time unit: %s", unit)
	}
}

func mustDuration(s string) time.Duration {
	d, err := ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("invalid duration %q: %v", s, err))
	}
	return d
}

// applyEnv overrides file values with the process environment.
func applyEnv(c *ConfigParam) {
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		c.ServerPort = v
	}
	if v := strings.TrimSpace(os.Getenv("ANALYSIS_URL")); v != "" {
		c.Analysis.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("DRIVER_URL")); v != "" {
		c.Driver.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
}

// ValidateConfig checks that all required configuration values are present and valid
func ValidateConfig(c *ConfigParam) error {
	if c.FormatVersion != ConfigFormatVersion {
		return fmt.Errorf("unsupported config file format version: %s", c.FormatVersion)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return err
	}

	durations := map[string]string{
		"request_timeout":          c.RequestTimeout,
		"pairing.qr_timeout":       c.Pairing.QRTimeout,
		"pairing.pairing_grace":    c.Pairing.PairingGrace,
		"pairing.janitor_interval": c.Pairing.JanitorInterval,
		"driver.request_timeout":   c.Driver.RequestTimeout,
		"analysis.request_timeout": c.Analysis.RequestTimeout,
	}
	for key, value := range durations {
		d, err := ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %v", key, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid %s: must not be negative", key)
		}
	}
	if c.Pairing.GetQRTimeout() <= 0 {
		return fmt.Errorf("pairing.qr_timeout must be positive")
	}
	if c.Pairing.GetPairingGrace() < c.Pairing.GetQRTimeout() {
		return fmt.Errorf("pairing.pairing_grace must not be shorter than pairing.qr_timeout")
	}
	// request_timeout bounds the connect, chats and analyze handlers
	if rt := c.GetRequestTimeout(); rt > 0 {
		if rt <= c.Pairing.GetQRTimeout() {
			return fmt.Errorf("request_timeout must be longer than pairing.qr_timeout")
		}
		if c.Driver.GetRequestTimeout() >= rt {
			return fmt.Errorf("driver.request_timeout must be shorter than request_timeout")
		}
		if c.Analysis.GetRequestTimeout() >= rt {
			return fmt.Errorf("analysis.request_timeout must be shorter than request_timeout")
		}
	}
	if _, err := time.LoadLocation(c.ChatFormat.Timezone); err != nil {
		return fmt.Errorf("invalid chat_format.timezone: %v", err)
	}
	return nil
}

// LoadConfig loads configuration from a file, layering it over the defaults. An
// empty filename uses the defaults. Values from a .env file in the working
// directory and from the environment take precedence.
func LoadConfig(filename string) error {
	_ = godotenv.Load() // no error if .env doesn't exist

	c := Default()
	if filename != "" {
		content, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("error reading config file: %v", err)
		}
		if _, err := toml.Decode(string(content), c); err != nil {
			return fmt.Errorf("error parsing config file: %v", err)
		}
	}
	applyEnv(c)

	if err := ValidateConfig(c); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}
	cfg = c
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Config represents the terminal agent configuration
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Cloud    CloudConfig     `yaml:"cloud"`
	Terminal TerminalConfig  `yaml:"terminal"`
	Storage  StorageConfig   `yaml:"storage"`
	Pricing  PricingConfig   `yaml:"pricing"`
	Printing PrintingConfig  `yaml:"printing"`
	Log      LogConfig       `yaml:"log"`
	Printers []PrinterConfig `yaml:"printers"`

	// ConfigPath is the path to the config file (not serialized)
	ConfigPath string `yaml:"-"`
}

// ServerConfig represents the local HTTP API the UI shell talks to
type ServerConfig struct {
	Port int    `yaml:"port" env:"GOPASS_SERVER_PORT" env-default:"8080"`
	Host string `yaml:"host" env:"GOPASS_SERVER_HOST" env-default:"127.0.0.1"`
}

// CloudConfig represents the GoPass API connection configuration
type CloudConfig struct {
	Endpoint string        `yaml:"endpoint" env:"GOPASS_CLOUD_ENDPOINT" env-default:"https://gopass.example.cd"`
	APIKey   string        `yaml:"api_key" env:"GOPASS_CLOUD_API_KEY"`
	Tenant   string        `yaml:"tenant" env:"GOPASS_CLOUD_TENANT"`
	Timeout  time.Duration `yaml:"timeout" env:"GOPASS_CLOUD_TIMEOUT" env-default:"15s"`

	// Connectivity probing. With UseWebSocket the link state of the push
	// channel is the online signal, otherwise a periodic HTTP probe is.
	ProbeInterval    time.Duration `yaml:"probe_interval" env:"GOPASS_CLOUD_PROBE_INTERVAL" env-default:"5s"`
	UseWebSocket     bool          `yaml:"use_websocket" env:"GOPASS_CLOUD_USE_WEBSOCKET" env-default:"false"`
	WSEndpoint       string        `yaml:"ws_endpoint" env:"GOPASS_CLOUD_WS_ENDPOINT"`
	WSReconnectDelay time.Duration `yaml:"ws_reconnect_delay" env-default:"1s"`
	WSMaxReconnect   time.Duration `yaml:"ws_max_reconnect_delay" env-default:"30s"`
	WSPingInterval   time.Duration `yaml:"ws_ping_interval" env-default:"30s"`
}

// TerminalConfig identifies this desk or gate
type TerminalConfig struct {
	ID       string `yaml:"id" env:"GOPASS_TERMINAL_ID" env-default:"POS-01"`
	Location string `yaml:"location" env:"GOPASS_TERMINAL_LOCATION" env-default:"FIH"`
}

// StorageConfig selects where the pending-scan queue is persisted
type StorageConfig struct {
	Driver string `yaml:"driver" env:"GOPASS_STORAGE_DRIVER" env-default:"file"` // "file", "sqlite" or "memory"
	Path   string `yaml:"path" env:"GOPASS_STORAGE_PATH" env-default:"gopass-terminal.json"`
}

// PricingConfig holds the point-of-sale price bands
type PricingConfig struct {
	Preset            float64 `yaml:"preset" env-default:"50"`
	Domestic          float64 `yaml:"domestic" env-default:"15"`
	International     float64 `yaml:"international" env-default:"55"`
	DomesticThreshold float64 `yaml:"domestic_threshold" env-default:"50"`
}

// PrintingConfig controls ticket spooling after a sale
type PrintingConfig struct {
	PrinterID   string        `yaml:"printer_id" env:"GOPASS_PRINTER_ID"`
	SettleDelay time.Duration `yaml:"settle_delay" env-default:"1s"`
}

// LogConfig controls the structured logger
type LogConfig struct {
	Level  string `yaml:"level" env:"GOPASS_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"GOPASS_LOG_FORMAT" env-default:"json"`
}

// PrinterConfig represents a printer configuration
type PrinterConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Type    string `yaml:"type"` // "network"
	Address string `yaml:"address,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// DefaultPaths are searched in order when no explicit path is given
var DefaultPaths = []string{
	"config.yaml",
	"configs/config.yaml",
	"/etc/gopass-terminal/config.yaml",
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Cloud: CloudConfig{
			Endpoint:         "https://gopass.example.cd",
			Timeout:          15 * time.Second,
			ProbeInterval:    5 * time.Second,
			UseWebSocket:     false,
			WSReconnectDelay: 1 * time.Second,
			WSMaxReconnect:   30 * time.Second,
			WSPingInterval:   30 * time.Second,
		},
		Terminal: TerminalConfig{
			ID:       "POS-01",
			Location: "FIH",
		},
		Storage: StorageConfig{
			Driver: "file",
			Path:   "gopass-terminal.json",
		},
		Pricing: PricingConfig{
			Preset:            50,
			Domestic:          15,
			International:     55,
			DomesticThreshold: 50,
		},
		Printing: PrintingConfig{
			SettleDelay: 1 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Printers: []PrinterConfig{},
	}
}

// Load loads configuration from path, or from the first DefaultPaths entry
// that exists when path is empty. Environment variables override the file.
func Load(path string) (*Config, error) {
	candidates := DefaultPaths
	if path != "" {
		candidates = []string{path}
	}

	var loadedPath string
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			loadedPath = p
			break
		}
	}
	if loadedPath == "" {
		return nil, fmt.Errorf("config: no config file found in %v: %w", candidates, os.ErrNotExist)
	}

	cfg := &Config{}
	if err := cleanenv.ReadConfig(loadedPath, cfg); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", loadedPath, err)
	}

	cfg.ConfigPath = loadedPath
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a configuration from defaults and environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: reading environment: %w", err)
	}
	if cfg.Printers == nil {
		cfg.Printers = []PrinterConfig{}
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the agent cannot run with
func (c *Config) Validate() error {
	if c.Cloud.Endpoint == "" {
		return errors.New("config: cloud.endpoint is required")
	}
	if c.Cloud.UseWebSocket && c.Cloud.WSEndpoint == "" {
		return errors.New("config: cloud.ws_endpoint is required when use_websocket is set")
	}
	switch c.Storage.Driver {
	case "file", "sqlite", "memory":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver != "memory" && c.Storage.Path == "" {
		return errors.New("config: storage.path is required")
	}
	for _, p := range c.Printers {
		if p.ID == "" {
			return errors.New("config: printer id is required")
		}
	}
	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

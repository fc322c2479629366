package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/plantops/pumpwatch/internal/model"
)

// RealAddr locates a 4-byte floating value. DB is set on home tags and
// inherited from the device entry for pump tags.
type RealAddr struct {
	DB     *int `json:"db,omitempty"`
	Offset *int `json:"offset"`
}

// BoolAddr locates a single bit. DB is set on home tags and inherited from
// the device entry for pump/chiller tags.
type BoolAddr struct {
	DB   *int `json:"db,omitempty"`
	Byte *int `json:"byte"`
	Bit  *int `json:"bit"`
}

// HomeConfig is the optional plant-aggregate tag group. Any tag may be
// absent; absent tags are simply never read.
type HomeConfig struct {
	KWH   *RealAddr `json:"all_pumps_kwh"`
	Level *RealAddr `json:"tank_water_level"`
	Temp  *RealAddr `json:"tank_temperature"`
	Alarm *BoolAddr `json:"alarm"`
}

// DeviceConfig is one pump or chiller entry. Entries are arrays, not maps,
// so configuration order survives JSON decoding. Color is passed through to
// the presentation layer and never interpreted here.
type DeviceConfig struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Color    string    `json:"color,omitempty"`
	DB       *int      `json:"db"`
	Ready    *BoolAddr `json:"ready"`
	Running  *BoolAddr `json:"running"`
	Trip     *BoolAddr `json:"trip"`
	Pressure *RealAddr `json:"pressure,omitempty"`
	Speed    *RealAddr `json:"speed,omitempty"`
}

type Config struct {
	ConfigFile string
	LogLevel   zerolog.Level
	LogFile    string

	PLC                 *model.Endpoint `json:"plc"`
	PollIntervalSeconds int             `json:"poll_interval_seconds"`
	DBFile              string          `json:"db_file"`
	APIPort             int             `json:"api_port"`

	Home     *HomeConfig    `json:"home"`
	Pumps    []DeviceConfig `json:"pumps"`
	Chillers []DeviceConfig `json:"chillers"`

	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`

	NtfyTopic string `json:"ntfy_topic"`
}

// Load parses flags and the config file. A missing or unparseable config
// file is fatal by design: the process must not start without one.
func Load() Config {
	var configFile, logLevel, logFile string

	flag.StringVar(&configFile, "config-file", "config.json", "Path to telemetry config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&logFile, "log-file", "", "Log file path (default stderr)")
	flag.Parse()

	cfg, err := LoadFile(configFile)
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	cfg.ConfigFile = configFile
	cfg.LogLevel = parseLogLevel(logLevel)
	cfg.LogFile = logFile
	return *cfg
}

// LoadFile reads and validates a config file without touching flag state.
func LoadFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.PollIntervalSeconds == 0 {
		cfg.PollIntervalSeconds = 2
	}
	if cfg.DBFile == "" {
		cfg.DBFile = "logs.db"
	}
	if cfg.APIPort == 0 {
		cfg.APIPort = 8051
	}
	if cfg.DDNamespace == "" {
		cfg.DDNamespace = "pumpwatch."
	}
}

func (cfg *Config) validate() error {
	if cfg.PLC == nil || cfg.PLC.Host == "" {
		return fmt.Errorf("config: plc endpoint host is required")
	}
	if cfg.PollIntervalSeconds < 1 {
		return fmt.Errorf("config: poll_interval_seconds must be at least 1, got %d", cfg.PollIntervalSeconds)
	}
	for _, d := range cfg.Pumps {
		if d.ID == "" {
			return fmt.Errorf("config: pump entry missing id")
		}
	}
	for _, d := range cfg.Chillers {
		if d.ID == "" {
			return fmt.Errorf("config: chiller entry missing id")
		}
	}
	return nil
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

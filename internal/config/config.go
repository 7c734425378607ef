package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models storepulse.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Report struct {
		DefaultTimezone string `yaml:"default_timezone"`
		ReportsDir      string `yaml:"reports_dir"`
	} `yaml:"report"`
	Ingest IngestConfig `yaml:"ingest"`
}

// IngestConfig drives CSV feed discovery. Each feed has an ordered list of
// candidate filenames tried in sequence; column aliases cover feeds that name
// the same column differently.
type IngestConfig struct {
	DataDir          string   `yaml:"data_dir"`
	BatchSize        int      `yaml:"batch_size"`
	StatusFiles      []string `yaml:"status_files"`
	HoursFiles       []string `yaml:"hours_files"`
	TimezoneFiles    []string `yaml:"timezone_files"`
	TimestampColumns []string `yaml:"timestamp_columns"`
	DayColumns       []string `yaml:"day_columns"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Report.DefaultTimezone == "" {
		return fmt.Errorf("config.report.default_timezone is required")
	}
	if c.Report.ReportsDir == "" {
		return fmt.Errorf("config.report.reports_dir is required")
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("config.ingest.batch_size must be positive")
	}
	if len(c.Ingest.StatusFiles) == 0 {
		return fmt.Errorf("config.ingest.status_files must list at least one candidate")
	}
	if len(c.Ingest.TimestampColumns) == 0 {
		return fmt.Errorf("config.ingest.timestamp_columns must list at least one candidate")
	}
	if len(c.Ingest.DayColumns) == 0 {
		return fmt.Errorf("config.ingest.day_columns must list at least one candidate")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "storepulse.yml")
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Fields omitted in
// the file keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

report:
  default_timezone: America/Chicago
  reports_dir: reports

ingest:
  data_dir: data
  batch_size: 5000
  status_files:
    - store_status.csv
    - store status.csv
    - Store Status.csv
    - store_data.csv
  hours_files:
    - menu_hours.csv
    - Menu hours.csv
    - business_hours.csv
    - store_hours.csv
  timezone_files:
    - store_timezones.csv
    - timezones.csv
    - bq-results-20230125-202210-1674678181880.csv
  timestamp_columns:
    - timestamp_utc
    - timestamp
  day_columns:
    - day
    - dayOfWeek
    - day_of_week
`

// Package config provides configuration loading and management for imagetools.
// It handles loading configuration from YAML or TOML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML or TOML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumWorkers specifies how many goroutines resample and split volumes
		NumWorkers int `yaml:"numWorkers" toml:"numWorkers"`

		// DefaultPixelValue fills voxels that fall outside a resampled image
		DefaultPixelValue float64 `yaml:"defaultPixelValue" toml:"defaultPixelValue"`
	} `yaml:"processing" toml:"processing"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults determines whether to save slice previews of each step
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults" toml:"saveIntermediaryResults"`

		// IntermediaryDir is where slice previews are written
		IntermediaryDir string `yaml:"intermediaryDir" toml:"intermediaryDir"`

		// SliceFormat is the image format of slice previews (jpg or png)
		SliceFormat string `yaml:"sliceFormat" toml:"sliceFormat"`
	} `yaml:"output" toml:"output"`

	// Logging parameters
	Logging struct {
		// Level is one of debug, info, warn or error
		Level string `yaml:"level" toml:"level"`
	} `yaml:"logging" toml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumWorkers = runtime.NumCPU()
	cfg.Processing.DefaultPixelValue = 0

	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary"
	cfg.Output.SliceFormat = "jpg"

	cfg.Logging.Level = "info"

	return cfg
}

// Validate checks the configuration values
func (c *Config) Validate() error {
	if c.Processing.NumWorkers < 0 {
		return fmt.Errorf("processing.numWorkers must not be negative, got %d", c.Processing.NumWorkers)
	}
	switch strings.ToLower(c.Output.SliceFormat) {
	case "jpg", "jpeg", "png":
	default:
		return fmt.Errorf("output.sliceFormat must be jpg or png, got %q", c.Output.SliceFormat)
	}
	if c.Output.SaveIntermediaryResults && c.Output.IntermediaryDir == "" {
		return fmt.Errorf("output.intermediaryDir is required when saving intermediary results")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

// LoadConfig loads configuration from a YAML or TOML file, chosen by extension.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	unmarshal := yaml.Unmarshal
	if isTOML(configPath) {
		unmarshal = toml.Unmarshal
	}
	if err := unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML or TOML file, chosen by extension
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var data []byte
	if isTOML(configPath) {
		var sb strings.Builder
		if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		data = []byte(sb.String())
	} else {
		var err error
		data, err = yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

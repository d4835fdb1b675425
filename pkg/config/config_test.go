package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// TestDefaultConfig verifies the default values
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Processing.NumWorkers != runtime.NumCPU() {
		t.Errorf("Expected %d workers, got %d", runtime.NumCPU(), cfg.Processing.NumWorkers)
	}
	if cfg.Output.SliceFormat != "jpg" {
		t.Errorf("Expected jpg slice format, got %q", cfg.Output.SliceFormat)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected info log level, got %q", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

// TestLoadConfigMissingFile verifies that a missing file yields the defaults
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Output.IntermediaryDir != "intermediary" {
		t.Errorf("Expected default intermediary dir, got %q", cfg.Output.IntermediaryDir)
	}
}

// TestLoadConfigYAML verifies partial YAML files override the defaults
func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "processing:\n  numWorkers: 3\n  defaultPixelValue: -1024\nlogging:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Processing.NumWorkers != 3 {
		t.Errorf("Expected 3 workers, got %d", cfg.Processing.NumWorkers)
	}
	if cfg.Processing.DefaultPixelValue != -1024 {
		t.Errorf("Expected default pixel -1024, got %v", cfg.Processing.DefaultPixelValue)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected debug level, got %q", cfg.Logging.Level)
	}
	if cfg.Output.SliceFormat != "jpg" {
		t.Errorf("Expected untouched slice format, got %q", cfg.Output.SliceFormat)
	}
}

// TestLoadConfigTOML verifies TOML files are decoded by extension
func TestLoadConfigTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[output]\nsaveIntermediaryResults = true\nintermediaryDir = \"previews\"\nsliceFormat = \"png\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !cfg.Output.SaveIntermediaryResults {
		t.Error("Expected intermediary results to be enabled")
	}
	if cfg.Output.IntermediaryDir != "previews" || cfg.Output.SliceFormat != "png" {
		t.Errorf("Unexpected output section: %+v", cfg.Output)
	}
}

// TestLoadConfigInvalid verifies malformed and out-of-range files are rejected
func TestLoadConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"broken.yaml":  "processing: [",
		"workers.yaml": "processing:\n  numWorkers: -2\n",
		"format.toml":  "[output]\nsliceFormat = \"gif\"\n",
		"level.yaml":   "logging:\n  level: loud\n",
	}
	for name, content := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

// TestSaveConfigRoundTrip verifies both formats survive a save and load
func TestSaveConfigRoundTrip(t *testing.T) {
	for _, name := range []string{"nested/config.yaml", "nested/config.toml"} {
		path := filepath.Join(t.TempDir(), name)

		cfg := DefaultConfig()
		cfg.Processing.NumWorkers = 5
		cfg.Output.SliceFormat = "png"
		if err := SaveConfig(cfg, path); err != nil {
			t.Fatalf("%s: SaveConfig failed: %v", name, err)
		}

		loaded, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("%s: LoadConfig failed: %v", name, err)
		}
		if *loaded != *cfg {
			t.Errorf("%s: round trip mismatch: %+v vs %+v", name, loaded, cfg)
		}
	}
}

// TestCreateDefaultConfigFile verifies the written file holds the defaults
func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("CreateDefaultConfigFile failed: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if *loaded != *DefaultConfig() {
		t.Errorf("Expected defaults, got %+v", loaded)
	}
}

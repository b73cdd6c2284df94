package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const envConfigPath = "QLINEAR_CONFIG"

// Config represents the qlinear configuration file (~/.config/qlinear/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	// Device
	Backend string `yaml:"backend"`
	Device  *int64 `yaml:"device"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Forward
	CopyInput *bool `yaml:"copy_input"`

	// Bench
	BenchBatches []int64 `yaml:"bench_batches"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	if p := os.Getenv(envConfigPath); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "qlinear", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config; a
// malformed one is an error.
func LoadConfig() (Config, error) {
	path := configPath()
	if path == "" {
		return Config{}, nil
	}
	return readConfig(path)
}

func readConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyLoggingConfig applies config file defaults to the logging flags when
// they were not set on the command line.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

func applyDeviceConfig(c *cli.Command, cfg Config) {
	if cfg.Backend != "" && !c.IsSet("backend") {
		backendName = cfg.Backend
	}
	if cfg.Device != nil && !c.IsSet("device") {
		deviceOrdinal = *cfg.Device
	}
}

func applyForwardConfig(c *cli.Command, cfg Config, copyInput *bool) {
	applyDeviceConfig(c, cfg)
	if cfg.CopyInput != nil && !c.IsSet("copy") {
		*copyInput = *cfg.CopyInput
	}
}

func applyBenchConfig(c *cli.Command, cfg Config, batches *[]int64) {
	applyDeviceConfig(c, cfg)
	if len(cfg.BenchBatches) > 0 && !c.IsSet("batches") {
		*batches = append([]int64(nil), cfg.BenchBatches...)
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	applyDeviceConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

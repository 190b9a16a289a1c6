// Package probeconfig loads the YAML configuration for the
// trackingsdk-probe example CLI: the connection endpoint, an optional
// device filter, the buffer size to request, and a log level.
package probeconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the decoded probe YAML file (the probe reads
// config/probe.yaml unless -config names another path).
type Config struct {
	Endpoint   string       `yaml:"endpoint"`
	LogLevel   string       `yaml:"log_level"`
	BufferSize int          `yaml:"buffer_size"`
	PollEvery  string       `yaml:"poll_every"`
	Devices    []DeviceSpec `yaml:"devices"`
}

// DeviceSpec names one device to filter a subscription down to. An empty
// Devices list in Config means "every connected device".
type DeviceSpec struct {
	SIUUUID uint32 `yaml:"siu_uuid"`
	PortID  uint32 `yaml:"port_id"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read probe config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse probe config %s: %w", path, err)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:50051"
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 500
	}
	if cfg.PollEvery == "" {
		cfg.PollEvery = "1s"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

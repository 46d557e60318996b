package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// RuntimeConfig shapes the execution context at startup.
type RuntimeConfig struct {
	Mode             string `toml:"mode"`
	RootDevice       int    `toml:"root_device"`
	Devices          []int  `toml:"devices"`
	RootSeed         int64  `toml:"root_seed"`
	SolverCount      int    `toml:"solver_count"`
	EnableDNN        bool   `toml:"enable_dnn"`
	WorkspaceLimitMB uint64 `toml:"workspace_limit_mb"`
}

// StatusConfig shapes the status/metrics HTTP server.
type StatusConfig struct {
	Name        string   `toml:"name"`
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

// DaemonConfig is the full tensord configuration file.
type DaemonConfig struct {
	Runtime RuntimeConfig `toml:"runtime"`
	Status  StatusConfig  `toml:"status"`
}

func LoadDaemonConfig(path string) (DaemonConfig, error) {
	cfg := DaemonConfig{Runtime: DefaultRuntimeConfig(), Status: DefaultStatusConfig()}
	if err := loadToml(path, &cfg); err != nil {
		return DaemonConfig{}, err
	}
	if err := ValidateRuntimeConfig(cfg.Runtime); err != nil {
		return DaemonConfig{}, err
	}
	if err := ValidateStatusConfig(cfg.Status); err != nil {
		return DaemonConfig{}, err
	}
	return cfg, nil
}

func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		Mode:        "accelerated",
		RootSeed:    -1,
		SolverCount: 1,
		EnableDNN:   true,
	}
}

func DefaultStatusConfig() StatusConfig {
	return StatusConfig{
		Name: "tensord",
		Addr: ":9400",
	}
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateRuntimeConfig(cfg RuntimeConfig) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", "host", "cpu", "accelerated", "accel", "gpu":
	default:
		return fmt.Errorf("runtime config has unknown mode: %s", cfg.Mode)
	}
	if cfg.RootDevice < 0 {
		return fmt.Errorf("runtime config root_device must not be negative")
	}
	for i, d := range cfg.Devices {
		if d < 0 {
			return fmt.Errorf("runtime config devices[%d] must not be negative", i)
		}
	}
	if cfg.SolverCount < 1 {
		return fmt.Errorf("runtime config solver_count must be at least 1")
	}
	if cfg.RootSeed < -1 {
		return fmt.Errorf("runtime config root_seed must be -1 (unset) or non-negative")
	}
	return nil
}

func ValidateStatusConfig(cfg StatusConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("status config missing name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("status config missing addr")
	}
	return nil
}

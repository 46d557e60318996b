package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// queryConfig controls which devices tensorctl inspects by default. Flags
// override the file; the file overrides these defaults.
type queryConfig struct {
	Mode    string
	Device  int
	All     bool
	MemOnly bool
}

type fileConfig struct {
	Mode    string `toml:"mode"`
	Device  int    `toml:"device"`
	All     bool   `toml:"all"`
	MemOnly bool   `toml:"mem_only"`
}

func defaultQueryConfig() queryConfig {
	return queryConfig{
		Mode:   "accelerated",
		Device: 0,
	}
}

func loadQueryConfig(path string) (queryConfig, error) {
	cfg := defaultQueryConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return queryConfig{}, fmt.Errorf("load tensorctl config: %w", err)
	}

	if meta.IsDefined("mode") {
		mode := strings.TrimSpace(raw.Mode)
		if mode != "" {
			cfg.Mode = mode
		}
	}

	if meta.IsDefined("device") {
		if raw.Device < 0 {
			return queryConfig{}, fmt.Errorf("tensorctl config device must not be negative")
		}
		cfg.Device = raw.Device
	}

	if meta.IsDefined("all") {
		cfg.All = raw.All
	}

	if meta.IsDefined("mem_only") {
		cfg.MemOnly = raw.MemOnly
	}

	return cfg, nil
}

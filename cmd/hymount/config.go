package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// ModuleConfig is one entry in modules.jsonc: a module's root directory and
// its requested mount strategy.
type ModuleConfig struct {
	ID         string `json:"id"`
	SourcePath string `json:"source_path"`
	Mode       string `json:"mode,omitempty"`
}

// Config holds hymount's on-disk configuration.
type Config struct {
	ModulesRoot     string         `json:"modules_root"`
	ScratchBase     string         `json:"scratch_base"`
	DisableUmount   bool           `json:"disable_umount,omitempty"`
	MaxMountRetries int            `json:"max_mount_retries,omitempty"`
	Modules         []ModuleConfig `json:"modules,omitempty"`
}

// DefaultConfig returns hymount's built-in defaults, mirroring the stock
// Magisk/KernelSU layout.
func DefaultConfig() Config {
	return Config{
		ModulesRoot:     "/data/adb/modules",
		ScratchBase:     "/dev/hymount",
		MaxMountRetries: 3,
	}
}

// LoadConfig reads configPath (JSON or JSONC, via tailscale/hujson) and
// layers it over DefaultConfig. A missing file is not an error: the
// defaults are returned unchanged, matching the optional-project-config
// behaviour of the teacher's own config loader.
func LoadConfig(configPath string) (Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return Config{}, fmt.Errorf("reading config %s: %w", configPath, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", configPath, err)
	}

	decoder := json.NewDecoder(bytes.NewReader(standardized))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", configPath, err)
	}

	return cfg, nil
}

// DefaultConfigPath returns the conventional config location next to the
// modules directory, ".hymount.jsonc" under /data/adb.
func DefaultConfigPath() string {
	return filepath.Join("/data/adb", ".hymount.jsonc")
}

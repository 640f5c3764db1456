package main

// config.go loads sccctl's JSONC config file: read raw bytes, run them
// through hujson.Standardize to strip comments/trailing commas, then
// unmarshal as plain JSON. Every field has a default (HistoryDir under
// $HOME/.sccctl, the rest zero values) so a missing config file never
// blocks a one-shot
// `sccctl dump <path>` invocation.

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// cliConfig holds settings a user would otherwise repeat on every invocation:
// where the snapshot history store lives, and S3 defaults for `layer publish`/
// `layer fetch`.
type cliConfig struct {
	HistoryDir string `json:"history_dir,omitempty"`

	S3Bucket         string `json:"s3_bucket,omitempty"`
	S3Region         string `json:"s3_region,omitempty"`
	S3Endpoint       string `json:"s3_endpoint,omitempty"`
	S3Prefix         string `json:"s3_prefix,omitempty"`
	S3ForcePathStyle bool   `json:"s3_force_path_style,omitempty"`
}

func defaultCLIConfig() cliConfig {
	return cliConfig{HistoryDir: filepath.Join(os.Getenv("HOME"), ".sccctl", "history")}
}

func configPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sccctl", "config.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "sccctl", "config.json")
}

// loadConfig reads the config file if present, overlaying it onto the
// defaults; a missing file is not an error.
func loadConfig(path string) (cliConfig, error) {
	cfg := defaultCLIConfig()
	if path == "" {
		path = configPath()
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cliConfig{}, fmt.Errorf("sccctl: reading config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return cliConfig{}, fmt.Errorf("sccctl: %s is not valid JSONC: %w", path, err)
	}
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return cliConfig{}, fmt.Errorf("sccctl: %s: %w", path, err)
	}
	return cfg, nil
}

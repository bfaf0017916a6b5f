// Package config loads and saves the tool's settings file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Config is the persisted settings file. Flags override everything here.
type Config struct {
	// BackupDir is where backup artifacts are written.
	BackupDir string `json:"backup_dir"`
	// PatternFile is a default catalog path used when --pattern-file is not
	// given; empty means the built-in catalog.
	PatternFile string `json:"pattern_file"`
	// Editors limits auto-discovery to these editor directory names.
	Editors []string `json:"editors"`
	// TimeoutSeconds bounds a whole batch; zero disables the ceiling.
	TimeoutSeconds int `json:"timeout_seconds"`
}

func DefaultConfig() Config {
	stateDir, _ := StateDir()
	return Config{
		BackupDir:      filepath.Join(stateDir, "backups"),
		TimeoutSeconds: 600,
	}
}

// Timeout returns the batch ceiling as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func ConfigDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "statewipe")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "statewipe")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "settings.json")
}

// StateDir returns the directory for run artifacts: backups and logs.
func StateDir() (string, error) {
	if base := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); base != "" {
		return filepath.Join(base, "statewipe"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".local", "state", "statewipe"), nil
}

func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if cfg.BackupDir == "" {
		cfg.BackupDir = DefaultConfig().BackupDir
	}
	if cfg.TimeoutSeconds < 0 {
		cfg.TimeoutSeconds = 0
	}

	return cfg, nil
}

func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

func SaveTo(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: creating config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}

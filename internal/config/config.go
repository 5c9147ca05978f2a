package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for fk.
type Config struct {
	BaseDir  string         `toml:"base_dir"`
	Log      LogConfig      `toml:"log"`
	Database DatabaseConfig `toml:"database"`
	Scan     ScanConfig     `toml:"scan"`
	Hash     HashConfig     `toml:"hash"`
	Devices  DevicesConfig  `toml:"devices"`
}

// LogConfig controls the log file and its rotation.
type LogConfig struct {
	Dir        string `toml:"dir"`
	Level      string `toml:"level"` // debug, info, warn, error
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// DatabaseConfig represents configuration for the index store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ScanConfig holds inventory scan settings.
type ScanConfig struct {
	MinSize   int64    `toml:"min_size"`
	BatchSize int      `toml:"batch_size"`
	Ignore    []string `toml:"ignore"`
}

// HashConfig holds hash refresh settings.
type HashConfig struct {
	Algorithm         string `toml:"algorithm"` // sha1, sha256 or sha512
	MaxAge            string `toml:"max_age"`   // e.g. "30d" or "720h"
	BatchSize         int    `toml:"batch_size"`
	BlockSize         int    `toml:"block_size"`
	CommitBytes       int64  `toml:"commit_bytes"`
	ProgressThreshold int64  `toml:"progress_threshold"`
	ReportInterval    string `toml:"report_interval"`
}

// DevicesConfig selects the device enumerator.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DevicesConfig struct {
	Type   string         `toml:"type"`             // "linux" or "static"
	Static []StaticDevice `toml:"static,omitempty"` // only used for type=static
}

// StaticDevice describes one volume for the static enumerator.
type StaticDevice struct {
	UUID       string `toml:"uuid"`
	Label      string `toml:"label,omitempty"`
	MountPoint string `toml:"mount_point"`
	Major      uint32 `toml:"major"`
	Minor      uint32 `toml:"minor"`
}

// NewConfig creates a Config with defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		Log: LogConfig{
			Dir:        filepath.Join(baseDir, "log"),
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 90,
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Scan: ScanConfig{
			MinSize:   10 * 1024 * 1024,
			BatchSize: 1000,
		},
		Hash: HashConfig{
			Algorithm:         "sha256",
			MaxAge:            "30d",
			BatchSize:         100,
			BlockSize:         1024 * 1024,
			CommitBytes:       1 << 30,
			ProgressThreshold: 100 * 1024 * 1024,
			ReportInterval:    "10s",
		},
		Devices: DevicesConfig{
			Type: "linux",
		},
	}
}

// MaxAgeDuration parses MaxAge.
func (h HashConfig) MaxAgeDuration() (time.Duration, error) {
	return ParseAge(h.MaxAge)
}

// ReportIntervalDuration parses ReportInterval. An empty value means zero.
func (h HashConfig) ReportIntervalDuration() (time.Duration, error) {
	if h.ReportInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(h.ReportInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid report_interval %q: %w", h.ReportInterval, err)
	}
	return d, nil
}

// ParseAge parses a duration that may also be given in whole days, as in "30d".
func ParseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty age")
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid age %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid age %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid age %q: negative", s)
	}
	return d, nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader on top of defaults.
func (m *Manager) Read(r io.Reader, defaults *Config) (*Config, error) {
	cfg := *defaults
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
// Keys absent from the file keep their value in defaults; a missing file yields defaults.
func ReadFromFile(path string, defaults *Config) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := *defaults
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f, defaults)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

package app

import (
	"fmt"
	"os"
	"path/filepath"

	"fk-go/internal/config"
)

// Paths are the default locations of the config file and of the data kept under
// the base directory.
type Paths struct {
	ConfigPath string
	BaseDir    string
}

// DefaultPaths resolves Paths from the environment, in order of precedence:
//   - FK_CONFIG_PATH, then $XDG_CONFIG_HOME/fk.toml, then ~/.config/fk.toml
//   - FK_HOME, then $XDG_DATA_HOME/fk, then ~/.local/share/fk
func DefaultPaths() (Paths, error) {
	configPath, err := xdgPath("FK_CONFIG_PATH", "XDG_CONFIG_HOME", ".config", "fk.toml")
	if err != nil {
		return Paths{}, err
	}
	baseDir, err := xdgPath("FK_HOME", "XDG_DATA_HOME", filepath.Join(".local", "share"), "fk")
	if err != nil {
		return Paths{}, err
	}
	return Paths{ConfigPath: configPath, BaseDir: baseDir}, nil
}

// LogDir is where fk.log and its rotated backups live unless log.dir overrides it.
func (p Paths) LogDir() string {
	return filepath.Join(p.BaseDir, "log")
}

// DataDir holds the index database unless database.data_dir overrides it.
func (p Paths) DataDir() string {
	return filepath.Join(p.BaseDir, "db")
}

// Config returns the built-in configuration rooted at BaseDir.
func (p Paths) Config() *config.Config {
	return config.NewConfig(p.BaseDir)
}

// xdgPath returns $override if set, else $xdgVar/name, else ~/homeRel/name.
// A relative $xdgVar is ignored, as the XDG base directory spec requires.
func xdgPath(override, xdgVar, homeRel, name string) (string, error) {
	if path := os.Getenv(override); path != "" {
		return path, nil
	}
	if dir := os.Getenv(xdgVar); filepath.IsAbs(dir) {
		return filepath.Join(dir, name), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, homeRel, name), nil
}

// Package config provides configuration management for fleetdash.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths holds all the path configurations for fleetdash.
type Paths struct {
	// ConfigDir is the directory for configuration files (~/.config/fleetdash)
	ConfigDir string

	// DataDir is the directory for data files (~/.local/share/fleetdash)
	DataDir string

	// RuntimeDir is the directory for runtime files like sockets and locks
	RuntimeDir string
}

// DefaultPaths returns the default paths following the XDG base directory layout.
// On Windows, it uses %APPDATA% instead.
func DefaultPaths() *Paths {
	home := homeDir()

	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			localAppData = filepath.Join(home, "AppData", "Local")
		}

		return &Paths{
			ConfigDir:  filepath.Join(appData, "fleetdash"),
			DataDir:    filepath.Join(localAppData, "fleetdash"),
			RuntimeDir: filepath.Join(localAppData, "fleetdash", "run"),
		}
	}

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = filepath.Join(home, ".config")
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = filepath.Join(home, ".local", "share")
	}

	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = filepath.Join(home, ".fleetdash", "run")
	} else {
		runtimeDir = filepath.Join(runtimeDir, "fleetdash")
	}

	return &Paths{
		ConfigDir:  filepath.Join(configHome, "fleetdash"),
		DataDir:    filepath.Join(dataHome, "fleetdash"),
		RuntimeDir: runtimeDir,
	}
}

// ConfigFile returns the path to the main configuration file.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.ConfigDir, "config.yaml")
}

// DatabaseFile returns the path to the SQLite database.
func (p *Paths) DatabaseFile() string {
	return filepath.Join(p.DataDir, "directory.db")
}

// SocketFile returns the path to the Unix domain socket.
func (p *Paths) SocketFile() string {
	return filepath.Join(p.RuntimeDir, "fleetdash.sock")
}

// LockFile returns the path to the picker lock file.
func (p *Paths) LockFile() string {
	return filepath.Join(p.RuntimeDir, "picker.lock")
}

// LogDir returns the path to the log directory.
func (p *Paths) LogDir() string {
	return filepath.Join(p.DataDir, "logs")
}

// LogFile returns the path to the server log file.
func (p *Paths) LogFile() string {
	return filepath.Join(p.LogDir(), "server.log")
}

// EnsureDirectories creates all necessary directories.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{
		p.ConfigDir,
		p.DataDir,
		p.RuntimeDir,
		p.LogDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}

// Resolve fills the path-valued settings left empty in cfg.
func (p *Paths) Resolve(cfg *Config) {
	if cfg.Server.SocketPath == "" {
		cfg.Server.SocketPath = p.SocketFile()
	}
	if cfg.Server.LogFile == "" {
		cfg.Server.LogFile = p.LogFile()
	}
	if cfg.Storage.Database == "" {
		cfg.Storage.Database = p.DatabaseFile()
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		if runtime.GOOS == "windows" {
			return os.Getenv("USERPROFILE")
		}
		return os.Getenv("HOME")
	}
	return home
}

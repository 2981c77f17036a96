package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestDefaultPaths(t *testing.T) {
	paths := DefaultPaths()

	if paths.ConfigDir == "" {
		t.Error("ConfigDir is empty")
	}
	if paths.DataDir == "" {
		t.Error("DataDir is empty")
	}
	if paths.RuntimeDir == "" {
		t.Error("RuntimeDir is empty")
	}

	if !filepath.IsAbs(paths.ConfigDir) {
		t.Errorf("ConfigDir should be absolute: %s", paths.ConfigDir)
	}
	if !filepath.IsAbs(paths.DataDir) {
		t.Errorf("DataDir should be absolute: %s", paths.DataDir)
	}
}

func TestDefaultPaths_XDG(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("XDG test not applicable on Windows")
	}

	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	t.Setenv("XDG_RUNTIME_DIR", "/custom/run")

	paths := DefaultPaths()

	if paths.ConfigDir != "/custom/config/fleetdash" {
		t.Errorf("ConfigDir should respect XDG_CONFIG_HOME: %s", paths.ConfigDir)
	}
	if paths.DataDir != "/custom/data/fleetdash" {
		t.Errorf("DataDir should respect XDG_DATA_HOME: %s", paths.DataDir)
	}
	if paths.RuntimeDir != "/custom/run/fleetdash" {
		t.Errorf("RuntimeDir should respect XDG_RUNTIME_DIR: %s", paths.RuntimeDir)
	}
}

func TestDefaultPaths_NoRuntimeDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("XDG test not applicable on Windows")
	}
	t.Setenv("XDG_RUNTIME_DIR", "")

	paths := DefaultPaths()
	if !strings.HasSuffix(paths.RuntimeDir, filepath.Join(".fleetdash", "run")) {
		t.Errorf("RuntimeDir should fall back to ~/.fleetdash/run: %s", paths.RuntimeDir)
	}
}

func TestPaths_Files(t *testing.T) {
	paths := &Paths{ConfigDir: "/c", DataDir: "/d", RuntimeDir: "/r"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"config", paths.ConfigFile(), "/c/config.yaml"},
		{"database", paths.DatabaseFile(), "/d/directory.db"},
		{"socket", paths.SocketFile(), "/r/fleetdash.sock"},
		{"lock", paths.LockFile(), "/r/picker.lock"},
		{"logdir", paths.LogDir(), "/d/logs"},
		{"logfile", paths.LogFile(), "/d/logs/server.log"},
	}

	for _, tt := range tests {
		if filepath.ToSlash(tt.got) != tt.want {
			t.Errorf("%s = %s, want %s", tt.name, tt.got, tt.want)
		}
	}
}

func TestPaths_Resolve(t *testing.T) {
	paths := &Paths{ConfigDir: "/c", DataDir: "/d", RuntimeDir: "/r"}

	cfg := DefaultConfig()
	cfg.Storage.Database = "/elsewhere/db.sqlite"
	paths.Resolve(cfg)

	if cfg.Server.SocketPath != paths.SocketFile() {
		t.Errorf("SocketPath = %s, want %s", cfg.Server.SocketPath, paths.SocketFile())
	}
	if cfg.Server.LogFile != paths.LogFile() {
		t.Errorf("LogFile = %s, want %s", cfg.Server.LogFile, paths.LogFile())
	}
	if cfg.Storage.Database != "/elsewhere/db.sqlite" {
		t.Errorf("Resolve should keep an explicit database path, got %s", cfg.Storage.Database)
	}
}

func TestPaths_EnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	paths := &Paths{
		ConfigDir:  filepath.Join(tmpDir, "config", "fleetdash"),
		DataDir:    filepath.Join(tmpDir, "data", "fleetdash"),
		RuntimeDir: filepath.Join(tmpDir, "run", "fleetdash"),
	}

	if err := paths.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	dirs := []string{
		paths.ConfigDir,
		paths.DataDir,
		paths.RuntimeDir,
		paths.LogDir(),
	}

	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("Directory should exist: %s", dir)
		} else if !info.IsDir() {
			t.Errorf("Should be a directory: %s", dir)
		}
	}
}

func TestHomeDir(t *testing.T) {
	home := homeDir()

	if home == "" {
		t.Error("homeDir returned empty string")
	}
	if !filepath.IsAbs(home) {
		t.Errorf("homeDir should return absolute path: %s", home)
	}
}

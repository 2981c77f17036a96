package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the fleetdash configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Picker  PickerConfig  `yaml:"picker"`
}

// ServerConfig holds settings for `fleetdash serve`.
type ServerConfig struct {
	HTTPAddr   string `yaml:"http_addr"`   // Listen address of the HTTP API
	SocketPath string `yaml:"socket_path"` // gRPC Unix socket path (overrides default)
	LogLevel   string `yaml:"log_level"`   // debug, info, warn, error
	LogFile    string `yaml:"log_file"`    // Log file path (overrides default, "-" for stderr)
}

// StorageConfig holds database settings.
type StorageConfig struct {
	Database string `yaml:"database"` // SQLite path (overrides default)
}

// Transport names how the picker reaches the directory.
const (
	TransportHTTP  = "http"
	TransportRPC   = "rpc"
	TransportLocal = "local"
)

// PickerConfig holds dropdown behavior shared by every tab.
type PickerConfig struct {
	DebounceMs      int      `yaml:"debounce_ms"`       // Quiet period before a search is sent
	PageSize        int      `yaml:"page_size"`         // Items requested per page
	MinSearchLength int      `yaml:"min_search_length"` // Characters required before searching
	CallOnOpen      bool     `yaml:"call_on_open"`      // Defer the first fetch until the dropdown opens
	Multiple        bool     `yaml:"multiple"`          // Multi-select with apply/cancel
	Clearable       bool     `yaml:"clearable"`         // Allow clearing the committed value
	Transport       string   `yaml:"transport"`         // http, rpc, or local
	APIURL          string   `yaml:"api_url"`           // Base URL for the http transport
	Tabs            []TabDef `yaml:"tabs"`              // Tab definitions
}

// TabDef defines one picker tab: a record kind plus fixed filters.
type TabDef struct {
	ID      string            `yaml:"id"`
	Label   string            `yaml:"label"`
	Kind    string            `yaml:"kind"`
	Filters map[string]string `yaml:"filters,omitempty"`
}

// DefaultTabs returns the tabs used when none are configured.
func DefaultTabs() []TabDef {
	return []TabDef{
		{ID: "clients", Label: "Clients", Kind: "clients", Filters: map[string]string{"status": "active"}},
		{ID: "users", Label: "Users", Kind: "users"},
		{ID: "vehicles", Label: "Vehicles", Kind: "vehicles"},
		{ID: "access", Label: "Access levels", Kind: "access-levels"},
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:   "127.0.0.1:8420",
			SocketPath: "", // Use default from paths
			LogLevel:   "info",
			LogFile:    "", // Use default from paths
		},
		Storage: StorageConfig{
			Database: "", // Use default from paths
		},
		Picker: PickerConfig{
			DebounceMs:      300,
			PageSize:        20,
			MinSearchLength: 0,
			CallOnOpen:      false,
			Multiple:        false,
			Clearable:       true,
			Transport:       TransportRPC,
			APIURL:          "http://127.0.0.1:8420",
			Tabs:            DefaultTabs(),
		},
	}
}

// Load loads configuration from the default path.
func Load() (*Config, error) {
	paths := DefaultPaths()
	return LoadFromFile(paths.ConfigFile())
}

// LoadFromFile loads configuration from the specified file.
// If the file doesn't exist, returns default configuration.
// Environment variable overrides are applied after file loading.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if len(cfg.Picker.Tabs) == 0 {
		cfg.Picker.Tabs = DefaultTabs()
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save saves the configuration to the default path.
func (c *Config) Save() error {
	paths := DefaultPaths()
	return c.SaveToFile(paths.ConfigFile())
}

// SaveToFile saves the configuration to the specified file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Get retrieves a configuration value by dot-separated key.
// For example: "server.log_level" or "picker.page_size"
func (c *Config) Get(key string) (string, error) {
	section, field, err := splitKey(key)
	if err != nil {
		return "", err
	}

	switch section {
	case "server":
		return c.getServerField(field)
	case "storage":
		return c.getStorageField(field)
	case "picker":
		return c.getPickerField(field)
	default:
		return "", fmt.Errorf("unknown section: %s", section)
	}
}

// Set sets a configuration value by dot-separated key.
func (c *Config) Set(key, value string) error {
	section, field, err := splitKey(key)
	if err != nil {
		return err
	}

	switch section {
	case "server":
		return c.setServerField(field, value)
	case "storage":
		return c.setStorageField(field, value)
	case "picker":
		return c.setPickerField(field, value)
	default:
		return fmt.Errorf("unknown section: %s", section)
	}
}

func splitKey(key string) (string, string, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return "", "", errors.New("key must be in format 'section.key'")
	}
	return parts[0], parts[1], nil
}

func (c *Config) getServerField(field string) (string, error) {
	switch field {
	case "http_addr":
		return c.Server.HTTPAddr, nil
	case "socket_path":
		return c.Server.SocketPath, nil
	case "log_level":
		return c.Server.LogLevel, nil
	case "log_file":
		return c.Server.LogFile, nil
	default:
		return "", fmt.Errorf("unknown field: server.%s", field)
	}
}

func (c *Config) setServerField(field, value string) error {
	switch field {
	case "http_addr":
		if value == "" {
			return errors.New("invalid http_addr: must not be empty")
		}
		c.Server.HTTPAddr = value
	case "socket_path":
		c.Server.SocketPath = value
	case "log_level":
		if !isValidLogLevel(value) {
			return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", value)
		}
		c.Server.LogLevel = value
	case "log_file":
		c.Server.LogFile = value
	default:
		return fmt.Errorf("unknown field: server.%s", field)
	}
	return nil
}

func (c *Config) getStorageField(field string) (string, error) {
	switch field {
	case "database":
		return c.Storage.Database, nil
	default:
		return "", fmt.Errorf("unknown field: storage.%s", field)
	}
}

func (c *Config) setStorageField(field, value string) error {
	switch field {
	case "database":
		c.Storage.Database = value
	default:
		return fmt.Errorf("unknown field: storage.%s", field)
	}
	return nil
}

func (c *Config) getPickerField(field string) (string, error) {
	switch field {
	case "debounce_ms":
		return strconv.Itoa(c.Picker.DebounceMs), nil
	case "page_size":
		return strconv.Itoa(c.Picker.PageSize), nil
	case "min_search_length":
		return strconv.Itoa(c.Picker.MinSearchLength), nil
	case "call_on_open":
		return strconv.FormatBool(c.Picker.CallOnOpen), nil
	case "multiple":
		return strconv.FormatBool(c.Picker.Multiple), nil
	case "clearable":
		return strconv.FormatBool(c.Picker.Clearable), nil
	case "transport":
		return c.Picker.Transport, nil
	case "api_url":
		return c.Picker.APIURL, nil
	default:
		return "", fmt.Errorf("unknown field: picker.%s", field)
	}
}

func (c *Config) setPickerField(field, value string) error {
	switch field {
	case "debounce_ms":
		v, err := parseNonNegative(field, value)
		if err != nil {
			return err
		}
		c.Picker.DebounceMs = v
	case "page_size":
		v, err := parseNonNegative(field, value)
		if err != nil {
			return err
		}
		c.Picker.PageSize = v
	case "min_search_length":
		v, err := parseNonNegative(field, value)
		if err != nil {
			return err
		}
		c.Picker.MinSearchLength = v
	case "call_on_open", "multiple", "clearable":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", field, err)
		}
		switch field {
		case "call_on_open":
			c.Picker.CallOnOpen = v
		case "multiple":
			c.Picker.Multiple = v
		default:
			c.Picker.Clearable = v
		}
	case "transport":
		if !isValidTransport(value) {
			return fmt.Errorf("invalid transport: %s (must be http, rpc, or local)", value)
		}
		c.Picker.Transport = value
	case "api_url":
		c.Picker.APIURL = value
	default:
		return fmt.Errorf("unknown field: picker.%s", field)
	}
	return nil
}

func parseNonNegative(field, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", field, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid %s: must be non-negative", field)
	}
	return v, nil
}

// Validate validates the configuration. Out-of-range picker sizes are
// clamped rather than rejected.
func (c *Config) Validate() error {
	if !isValidLogLevel(c.Server.LogLevel) {
		return fmt.Errorf("server.log_level must be debug, info, warn, or error (got: %s)", c.Server.LogLevel)
	}
	if c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr must not be empty")
	}

	if c.Picker.DebounceMs < 0 {
		return errors.New("picker.debounce_ms must be >= 0")
	}
	if c.Picker.MinSearchLength < 0 {
		return errors.New("picker.min_search_length must be >= 0")
	}

	// Clamp page size to [5, 100]
	if c.Picker.PageSize < 5 {
		c.Picker.PageSize = 5
	}
	if c.Picker.PageSize > 100 {
		c.Picker.PageSize = 100
	}

	if !isValidTransport(c.Picker.Transport) {
		return fmt.Errorf("picker.transport must be http, rpc, or local (got: %s)", c.Picker.Transport)
	}
	if c.Picker.Transport == TransportHTTP && c.Picker.APIURL == "" {
		return errors.New("picker.api_url is required for the http transport")
	}

	seen := make(map[string]bool, len(c.Picker.Tabs))
	for i, tab := range c.Picker.Tabs {
		if tab.ID == "" {
			return fmt.Errorf("picker.tabs[%d]: id is required", i)
		}
		if seen[tab.ID] {
			return fmt.Errorf("picker.tabs[%d]: duplicate id %q", i, tab.ID)
		}
		seen[tab.ID] = true
		if tab.Kind == "" {
			return fmt.Errorf("picker.tabs[%d]: kind is required", i)
		}
	}

	return nil
}

// Tab returns the tab with the given id.
func (c *Config) Tab(id string) (TabDef, bool) {
	for _, tab := range c.Picker.Tabs {
		if tab.ID == id {
			return tab, true
		}
	}
	return TabDef{}, false
}

// FilterKeys returns the tab's filter names in a stable order.
func (t TabDef) FilterKeys() []string {
	keys := make([]string, 0, len(t.Filters))
	for k := range t.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidTransport(transport string) bool {
	switch transport {
	case TransportHTTP, TransportRPC, TransportLocal:
		return true
	default:
		return false
	}
}

// ApplyEnvOverrides applies environment variable overrides to the config.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("FLEETDASH_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			c.Server.LogLevel = "debug"
		}
	}
	if v := os.Getenv("FLEETDASH_LOG_LEVEL"); v != "" {
		if isValidLogLevel(v) {
			c.Server.LogLevel = v
		}
	}
	if v := os.Getenv("FLEETDASH_SOCKET_PATH"); v != "" {
		c.Server.SocketPath = v
	}
	if v := os.Getenv("FLEETDASH_API_URL"); v != "" {
		c.Picker.APIURL = v
	}
}

// ListKeys returns user-facing configuration keys.
func ListKeys() []string {
	return []string{
		"server.http_addr",
		"server.socket_path",
		"server.log_level",
		"server.log_file",
		"storage.database",
		"picker.debounce_ms",
		"picker.page_size",
		"picker.min_search_length",
		"picker.call_on_open",
		"picker.multiple",
		"picker.clearable",
		"picker.transport",
		"picker.api_url",
	}
}

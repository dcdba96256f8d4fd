package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tailscale/hujson"
)

const (
	configDirName  = ".bmadkit"
	configFileName = "config.json"
)

// Mode selects which discovery sources participate in resolution.
type Mode string

const (
	// ModeNormal consults explicit paths, the project directory, git
	// remotes, and the user home, in that priority order.
	ModeNormal Mode = "normal"
	// ModeStrict consults only explicit paths and git remotes. Ambient
	// project/user installations are ignored for reproducible resolution.
	ModeStrict Mode = "strict"
)

// Duration is a time.Duration that marshals as a human-readable string
// ("24h", "90m") in the config file.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the persistent bmadkit configuration plus the per-invocation
// knobs the CLI and server layer fill in at runtime.
type Config struct {
	// ExplicitPaths are operator-supplied installation directories.
	// Highest priority; a nonexistent entry lands in the diagnostic trail.
	ExplicitPaths []string `json:"explicitPaths,omitempty"`
	// Remotes are compound git specifiers resolved through the cache.
	Remotes []string `json:"remotes,omitempty"`
	// Mode selects normal or strict source participation.
	Mode Mode `json:"mode,omitempty"`
	// CacheRoot overrides where git clones are stored.
	CacheRoot string `json:"cacheRoot,omitempty"`
	// AutoUpdate enables TTL-based refresh of cached clones.
	AutoUpdate *bool `json:"autoUpdate,omitempty"`
	// UpdateTTL is how long a fetched clone stays fresh.
	UpdateTTL Duration `json:"updateTTL,omitempty"`
	// CloneTimeout bounds each network operation against a remote.
	CloneTimeout Duration `json:"cloneTimeout,omitempty"`
	// MaxDepth bounds installation discovery below each scan root.
	MaxDepth int `json:"maxDepth,omitempty"`

	// ProjectDir and UserHome are runtime scan roots, never persisted.
	ProjectDir string `json:"-"`
	UserHome   string `json:"-"`
}

// AutoUpdateEnabled resolves the tri-state AutoUpdate flag (default on).
func (c *Config) AutoUpdateEnabled() bool {
	return c.AutoUpdate == nil || *c.AutoUpdate
}

// TTL resolves the update TTL with its default.
func (c *Config) TTL() time.Duration {
	if c.UpdateTTL <= 0 {
		return defaultUpdateTTL
	}
	return time.Duration(c.UpdateTTL)
}

// Timeout resolves the per-remote network timeout with its default.
func (c *Config) Timeout() time.Duration {
	if c.CloneTimeout <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.CloneTimeout)
}

// Strict reports whether strict-mode source filtering is active.
func (c *Config) Strict() bool { return c.Mode == ModeStrict }

// ConfigManager handles reading and writing the bmadkit configuration.
type ConfigManager struct {
	configDir string
	mu        sync.RWMutex
}

// NewConfigManager creates a ConfigManager using the default config path
// (~/.bmadkit/).
func NewConfigManager() (*ConfigManager, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}
	return &ConfigManager{
		configDir: filepath.Join(home, configDirName),
	}, nil
}

// NewConfigManagerWithDir creates a ConfigManager using a custom config
// directory. Useful for testing.
func NewConfigManagerWithDir(dir string) *ConfigManager {
	return &ConfigManager{configDir: dir}
}

// ConfigDir returns the configuration directory path.
func (cm *ConfigManager) ConfigDir() string {
	return cm.configDir
}

// ConfigPath returns the full path to the config file.
func (cm *ConfigManager) ConfigPath() string {
	return filepath.Join(cm.configDir, configFileName)
}

// CacheRoot returns where git clones are stored, honoring the override
// in cfg when present.
func (cm *ConfigManager) CacheRoot(cfg *Config) string {
	if cfg != nil && cfg.CacheRoot != "" {
		return cfg.CacheRoot
	}
	return filepath.Join(cm.configDir, "cache", "git")
}

// Load reads the config from disk. The file may carry comments and
// trailing commas; it is standardized before parsing. Returns the
// default config if the file doesn't exist.
func (cm *ConfigManager) Load() (*Config, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	path := cm.ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("standardizing config: %w", err)
	}

	cfg := defaultConfig()
	if err := json.Unmarshal(standardized, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to disk, creating the directory if needed.
func (cm *ConfigManager) Save(cfg *Config) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if err := os.MkdirAll(cm.configDir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Write atomically: write to temp file then rename
	tmpPath := cm.ConfigPath() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmpPath, cm.ConfigPath()); err != nil {
		_ = os.Remove(tmpPath) // clean up on failure
		return fmt.Errorf("saving config: %w", err)
	}

	return nil
}

func defaultConfig() *Config {
	return &Config{
		Mode:     ModeNormal,
		MaxDepth: defaultMaxDepth,
	}
}

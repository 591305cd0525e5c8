// Package config handles configuration loading, validation, and management
// for emojilens.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"emojilens/internal/logging"
	"emojilens/internal/mutation"
	"emojilens/internal/prefs"
	"emojilens/internal/server"
	"emojilens/internal/watcher"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete CLI and daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Lexicon selects the emoji name data.
	Lexicon LexiconConfig `toml:"lexicon" json:"lexicon" yaml:"lexicon"`

	// Preferences selects the display preferences backend.
	Preferences PreferencesConfig `toml:"preferences" json:"preferences" yaml:"preferences"`

	// Observer tunes incremental annotation of live documents.
	Observer ObserverConfig `toml:"observer" json:"observer" yaml:"observer"`

	// Server configures the HTTP surface.
	Server ServerConfig `toml:"server" json:"server" yaml:"server"`

	// Watch configures file mode.
	Watch WatchConfig `toml:"watch" json:"watch" yaml:"watch"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// LexiconConfig points at an emoji-data.json file.
type LexiconConfig struct {
	// Path to a lexicon file. Empty uses the embedded data.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// PreferencesConfig selects the preferences backend.
type PreferencesConfig struct {
	// Backend is "memory", "file" or "sqlite".
	Backend string `toml:"backend" json:"backend" yaml:"backend"`

	// Path is the preferences file or database.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// ObserverConfig holds the mutation debounce.
type ObserverConfig struct {
	// DebounceMs is the quiet period before pending nodes are annotated.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Listen       string  `toml:"listen" json:"listen" yaml:"listen"`
	RateLimit    float64 `toml:"rate_limit" json:"rate_limit" yaml:"rate_limit"`
	Burst        int     `toml:"burst" json:"burst" yaml:"burst"`
	MaxBodyBytes int64   `toml:"max_body_bytes" json:"max_body_bytes" yaml:"max_body_bytes"`
}

// WatchConfig holds file mode settings.
type WatchConfig struct {
	// Paths are HTML files or directories to watch.
	Paths []string `toml:"paths" json:"paths" yaml:"paths"`

	// OutputDir receives annotated copies. Empty writes next to the source.
	OutputDir string `toml:"output_dir" json:"output_dir" yaml:"output_dir"`

	// Suffix is inserted before the output extension.
	Suffix string `toml:"suffix" json:"suffix" yaml:"suffix"`

	// DebounceMs is how long a file must be unchanged before annotation.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`

	// RecordRuns stores each annotation in the runs database.
	RecordRuns bool `toml:"record_runs" json:"record_runs" yaml:"record_runs"`

	// RunsPath is the SQLite database for run history.
	RunsPath string `toml:"runs_path" json:"runs_path" yaml:"runs_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file when Output includes a file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the file size that triggers rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files kept.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()
	srv := server.DefaultConfig()

	return &Config{
		Version: Version,
		Preferences: PreferencesConfig{
			Backend: prefs.BackendFile,
			Path:    filepath.Join(dir, "preferences.toml"),
		},
		Observer: ObserverConfig{
			DebounceMs: int(mutation.DefaultDelay / time.Millisecond),
		},
		Server: ServerConfig{
			Listen:       srv.Listen,
			RateLimit:    srv.RateLimit,
			Burst:        srv.Burst,
			MaxBodyBytes: srv.MaxBodyBytes,
		},
		Watch: WatchConfig{
			Paths:      []string{},
			Suffix:     watcher.DefaultSuffix,
			DebounceMs: int(watcher.DefaultDebounce / time.Millisecond),
			RunsPath:   filepath.Join(dir, "runs.db"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(dir, "emojilens.log"),
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	if path := FindConfigFile(); path != "" {
		return path
	}
	return filepath.Join(DataDir(), "config.toml")
}

// Load reads configuration from path, or ConfigPath when path is empty.
// A missing file yields the defaults. The decoder is chosen by extension.
// Environment overrides are applied and the result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	}
	return cfg, nil
}

// Save writes the configuration to path in the format its extension names.
func Save(cfg *Config, path string) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
		data = append(data, '\n')
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies EMOJILENS_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("EMOJILENS_LEXICON_PATH"); v != "" {
		c.Lexicon.Path = v
	}
	if v := os.Getenv("EMOJILENS_PREFERENCES_BACKEND"); v != "" {
		c.Preferences.Backend = v
	}
	if v := os.Getenv("EMOJILENS_PREFERENCES_PATH"); v != "" {
		c.Preferences.Path = v
	}
	if v := os.Getenv("EMOJILENS_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("EMOJILENS_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Server.RateLimit = f
		}
	}
	if v := os.Getenv("EMOJILENS_DEBOUNCE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Observer.DebounceMs = n
		}
	}
	if v := os.Getenv("EMOJILENS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("EMOJILENS_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version:     c.Version,
		Lexicon:     c.Lexicon,
		Preferences: c.Preferences,
		Observer:    c.Observer,
		Server:      c.Server,
		Watch:       c.Watch,
		Logging:     c.Logging,
	}
	clone.Watch.Paths = append([]string{}, c.Watch.Paths...)
	return clone
}

// ObserverDelay is the observer debounce as a duration.
func (c *Config) ObserverDelay() time.Duration {
	return time.Duration(c.Observer.DebounceMs) * time.Millisecond
}

// ServerOptions converts the server section.
func (c *Config) ServerOptions() server.Config {
	return server.Config{
		Listen:       c.Server.Listen,
		RateLimit:    c.Server.RateLimit,
		Burst:        c.Server.Burst,
		MaxBodyBytes: c.Server.MaxBodyBytes,
	}
}

// PreferencesOptions converts the preferences section.
func (c *Config) PreferencesOptions() prefs.Options {
	return prefs.Options{
		Backend: c.Preferences.Backend,
		Path:    expandPath(c.Preferences.Path),
	}
}

// LoggerConfig converts the logging section. Validate has already
// checked level and format.
func (c *Config) LoggerConfig() *logging.Config {
	level, _ := logging.ParseLevel(c.Logging.Level)
	format, _ := logging.ParseFormat(c.Logging.Format)
	return &logging.Config{
		Level:      level,
		Format:     format,
		Output:     c.Logging.Output,
		FilePath:   expandPath(c.Logging.FilePath),
		MaxSize:    int64(c.Logging.MaxSizeMB),
		MaxBackups: c.Logging.MaxBackups,
	}
}

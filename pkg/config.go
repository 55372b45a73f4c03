package hifi

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-ini/ini"
)

// Config represents the hifi configuration file
type Config struct {
	configDir  string
	configPath string
	ini        *ini.File
}

// DatabaseConfig represents index database configuration
type DatabaseConfig struct {
	Path string // Database file, defaults to hifi.db in the config directory
}

// HashConfig represents hash algorithm configuration
type HashConfig struct {
	Default string // Algorithm recorded in newly created databases
}

// PerformanceConfig represents performance-related configuration
type PerformanceConfig struct {
	HashWorkers int    // Number of concurrent hash workers (default: 4)
	HashBuffer  string // Read buffer size per hash worker (default: "2M")
}

// VerboseConfig represents verbosity configuration
type VerboseConfig struct {
	Level int    // Default verbose level (0=quiet, 1=basic, 2=detailed, 3=trace)
	Debug string // Default debug flags (comma-separated)
}

// OutputConfig represents output format configuration
type OutputConfig struct {
	Format string // human, json or fdupes
}

// LogFileConfig represents the rotated log file configuration
type LogFileConfig struct {
	File       string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// MetricsConfig represents metrics export configuration
type MetricsConfig struct {
	Textfile string // node_exporter textfile, empty disables
}

// WatchConfig represents watch mode configuration
type WatchConfig struct {
	Debounce time.Duration
}

// AllConfig represents all configuration options
type AllConfig struct {
	Database    *DatabaseConfig
	Hash        *HashConfig
	Performance *PerformanceConfig
	Verbose     *VerboseConfig
	Output      *OutputConfig
	Log         *LogFileConfig
	Metrics     *MetricsConfig
	Watch       *WatchConfig
}

// configDefaults lists every section and key written to a new config file
var configDefaults = []struct {
	section, key, value string
}{
	{"database", "path", ""},
	{"filehash", "default", DefaultHashMethod},
	{"performance", "hash_workers", fmt.Sprintf("%d", DefaultHashWorkers)},
	{"performance", "hash_buffer", DefaultHashBuffer},
	{"verbose", "level", "0"},
	{"verbose", "debug", ""},
	{"output", "format", "human"},
	{"log", "file", ""},
	{"log", "max_size", "64"},
	{"log", "max_backups", "3"},
	{"log", "max_age", "28"},
	{"metrics", "textfile", ""},
	{"watch", "debounce", "2s"},
}

// overrideKeys maps command-line override keys to their section
var overrideKeys = map[string]string{
	"path":         "database",
	"default":      "filehash",
	"hash_workers": "performance",
	"hash_buffer":  "performance",
	"level":        "verbose",
	"debug":        "verbose",
	"format":       "output",
	"file":         "log",
	"textfile":     "metrics",
	"debounce":     "watch",
}

// DefaultConfigDir returns ~/.config/hifi
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", ConfigDirName), nil
}

// LoadConfig loads configuration from configDir/config, writing a default
// file first when none exists
func LoadConfig(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, ConfigFileName)

	cfg := &Config{
		configDir:  configDir,
		configPath: configPath,
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg.ini = ini.Empty()
		if err := cfg.setDefaults(); err != nil {
			return nil, fmt.Errorf("failed to set default config: %w", err)
		}
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
		VerboseLog(1, "Created default configuration %s", configPath)
	} else {
		iniFile, err := ini.Load(configPath)
		if err != nil {
			return nil, &ConfigError{Key: configPath, Err: fmt.Errorf("failed to load config file: %w", err)}
		}
		cfg.ini = iniFile
	}

	return cfg, nil
}

// NewDefaultConfig returns an unsaved configuration holding the defaults
func NewDefaultConfig(configDir string) *Config {
	cfg := &Config{
		configDir:  configDir,
		configPath: filepath.Join(configDir, ConfigFileName),
		ini:        ini.Empty(),
	}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default configuration values
func (c *Config) setDefaults() error {
	for _, d := range configDefaults {
		section, err := c.ini.NewSection(d.section)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", d.section, err)
		}
		if _, err := section.NewKey(d.key, d.value); err != nil {
			return fmt.Errorf("failed to set default %s.%s: %w", d.section, d.key, err)
		}
	}
	return nil
}

// ConfigDir returns the directory holding the config, ignore file and default database
func (c *Config) ConfigDir() string {
	return c.configDir
}

// ConfigPath returns the config file path
func (c *Config) ConfigPath() string {
	return c.configPath
}

// IgnoreFilePath returns the ignore pattern file next to the config
func (c *Config) IgnoreFilePath() string {
	return filepath.Join(c.configDir, IgnoreFileName)
}

func (c *Config) value(section, key, fallback string) string {
	if c.ini.HasSection(section) {
		s := c.ini.Section(section)
		if s.HasKey(key) {
			if v := strings.TrimSpace(s.Key(key).String()); v != "" {
				return v
			}
		}
	}
	return fallback
}

func (c *Config) intValue(section, key string, fallback int) int {
	if c.ini.HasSection(section) {
		s := c.ini.Section(section)
		if s.HasKey(key) {
			if v, err := s.Key(key).Int(); err == nil {
				return v
			}
		}
	}
	return fallback
}

// GetDatabaseConfig returns the database configuration with "~" expanded
func (c *Config) GetDatabaseConfig() *DatabaseConfig {
	path := c.value("database", "path", filepath.Join(c.configDir, DatabaseName))
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return &DatabaseConfig{Path: path}
}

// GetHashConfig returns the hash configuration
func (c *Config) GetHashConfig() *HashConfig {
	return &HashConfig{Default: c.value("filehash", "default", DefaultHashMethod)}
}

// GetPerformanceConfig returns the performance configuration
func (c *Config) GetPerformanceConfig() *PerformanceConfig {
	return &PerformanceConfig{
		HashWorkers: c.intValue("performance", "hash_workers", DefaultHashWorkers),
		HashBuffer:  c.value("performance", "hash_buffer", DefaultHashBuffer),
	}
}

// GetVerboseConfig returns the verbose configuration
func (c *Config) GetVerboseConfig() *VerboseConfig {
	return &VerboseConfig{
		Level: c.intValue("verbose", "level", 0),
		Debug: c.value("verbose", "debug", ""),
	}
}

// GetOutputConfig returns the output configuration
func (c *Config) GetOutputConfig() *OutputConfig {
	return &OutputConfig{Format: c.value("output", "format", "human")}
}

// GetLogFileConfig returns the log file configuration
func (c *Config) GetLogFileConfig() *LogFileConfig {
	return &LogFileConfig{
		File:       c.value("log", "file", ""),
		MaxSize:    c.intValue("log", "max_size", 64),
		MaxBackups: c.intValue("log", "max_backups", 3),
		MaxAge:     c.intValue("log", "max_age", 28),
	}
}

// GetMetricsConfig returns the metrics configuration
func (c *Config) GetMetricsConfig() *MetricsConfig {
	return &MetricsConfig{Textfile: c.value("metrics", "textfile", "")}
}

// GetWatchConfig returns the watch configuration. An unparsable debounce
// falls back to two seconds; Validate reports it.
func (c *Config) GetWatchConfig() *WatchConfig {
	debounce, err := time.ParseDuration(c.value("watch", "debounce", "2s"))
	if err != nil || debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &WatchConfig{Debounce: debounce}
}

// GetAllConfig returns all configuration options
func (c *Config) GetAllConfig() *AllConfig {
	return &AllConfig{
		Database:    c.GetDatabaseConfig(),
		Hash:        c.GetHashConfig(),
		Performance: c.GetPerformanceConfig(),
		Verbose:     c.GetVerboseConfig(),
		Output:      c.GetOutputConfig(),
		Log:         c.GetLogFileConfig(),
		Metrics:     c.GetMetricsConfig(),
		Watch:       c.GetWatchConfig(),
	}
}

// Set stores a value and saves the file
func (c *Config) Set(section, key, value string) error {
	c.ini.Section(section).Key(key).SetValue(value)
	return c.Save()
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	return c.ini.SaveTo(c.configPath)
}

// ApplyOverrides applies command-line overrides to the configuration
// Accepts strings like "default:sha256", "format:json", "level:2", "debug:scan"
func (c *Config) ApplyOverrides(overrides []string) error {
	for _, override := range overrides {
		parts := strings.SplitN(override, ":", 2)
		if len(parts) != 2 {
			return &ConfigError{Key: override, Err: fmt.Errorf("invalid override format '%s', expected 'key:value'", override)}
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		section, ok := overrideKeys[key]
		if !ok {
			return &ConfigError{Key: key, Err: fmt.Errorf("unsupported override key '%s'", key)}
		}
		c.ini.Section(section).Key(key).SetValue(value)
	}
	return nil
}

// Validate checks every configured value
func (c *Config) Validate() error {
	all := c.GetAllConfig()

	if err := ValidateHashAlgorithm(all.Hash.Default); err != nil {
		return &ConfigError{Key: "filehash.default", Err: err}
	}
	if err := ValidateHashWorkers(all.Performance.HashWorkers); err != nil {
		return &ConfigError{Key: "performance.hash_workers", Err: err}
	}
	if _, err := ParseHumanSize(all.Performance.HashBuffer); err != nil {
		return &ConfigError{Key: "performance.hash_buffer", Err: err}
	}
	if err := ValidateVerboseLevel(all.Verbose.Level); err != nil {
		return &ConfigError{Key: "verbose.level", Err: err}
	}
	if err := ValidateOutputFormat(all.Output.Format); err != nil {
		return &ConfigError{Key: "output.format", Err: err}
	}
	if d, err := time.ParseDuration(c.value("watch", "debounce", "2s")); err != nil || d <= 0 {
		return &ConfigError{Key: "watch.debounce", Err: fmt.Errorf("invalid duration %q", c.value("watch", "debounce", "2s"))}
	}
	return nil
}

// ValidateHashAlgorithm validates that a hash algorithm is supported
func ValidateHashAlgorithm(algorithm string) error {
	if _, ok := HashTypeFromName(algorithm); !ok {
		return fmt.Errorf("unsupported hash algorithm: %s (supported: md5, sha1, sha256, sha512, xxh64)", algorithm)
	}
	return nil
}

// ValidateOutputFormat validates that an output format is supported
func ValidateOutputFormat(format string) error {
	switch strings.ToLower(format) {
	case "human", "json", "fdupes":
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s (supported: human, json, fdupes)", format)
	}
}

// ValidateVerboseLevel validates that a verbose level is valid
func ValidateVerboseLevel(level int) error {
	if level < 0 || level > 3 {
		return fmt.Errorf("invalid verbose level: %d (supported: 0-3)", level)
	}
	return nil
}

// ValidateHashWorkers validates that the hash worker count is reasonable
func ValidateHashWorkers(workers int) error {
	if workers < 1 {
		return fmt.Errorf("hash workers must be at least 1, got: %d", workers)
	}
	if workers > MaxHashWorkers {
		return fmt.Errorf("hash workers should not exceed %d, got: %d", MaxHashWorkers, workers)
	}
	return nil
}

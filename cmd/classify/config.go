package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/hengadev/errsx"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hengadev/classify/internal/monitoring"
)

const defaultConfigPath = "classify.yaml"

// Environment variables overriding the configuration file
const (
	EnvStoreBackend = "CLASSIFY_STORE"
	EnvStoreDir     = "CLASSIFY_STORE_DIR"
	EnvSQLitePath   = "CLASSIFY_SQLITE_PATH"
	EnvS3Bucket     = "CLASSIFY_S3_BUCKET"
	EnvS3Prefix     = "CLASSIFY_S3_PREFIX"
	EnvS3Region     = "CLASSIFY_S3_REGION"
	EnvVaultMount   = "CLASSIFY_VAULT_MOUNT"
	EnvVaultPrefix  = "CLASSIFY_VAULT_PREFIX"
	EnvLogLevel     = "CLASSIFY_LOG_LEVEL"
	EnvLogFormat    = "CLASSIFY_LOG_FORMAT"
)

// Config represents the configuration of the classify command
type Config struct {
	Version string      `yaml:"version"`
	Log     LogConfig   `yaml:"log"`
	Store   StoreConfig `yaml:"store"`
}

// LogConfig selects the level and format of diagnostics
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig selects the settings backend used by push, pull and history
type StoreConfig struct {
	Backend string       `yaml:"backend"`
	Dir     string       `yaml:"dir"`
	SQLite  SQLiteConfig `yaml:"sqlite"`
	S3      S3Config     `yaml:"s3"`
	Vault   VaultConfig  `yaml:"vault"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

type VaultConfig struct {
	Mount  string `yaml:"mount"`
	Prefix string `yaml:"prefix"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Store: StoreConfig{
			Backend: "file",
			Dir:     ".classify",
			SQLite:  SQLiteConfig{Path: ".classify/settings.db"},
			Vault:   VaultConfig{Mount: "secret", Prefix: "classify"},
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of the defaults.
// A missing file is an error only when required is set.
func LoadConfig(path string, required bool) (*Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadDotEnv loads variables from the .env files that exist, without
// overriding the environment.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var present []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			present = append(present, p)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// ApplyEnvironment overrides the configuration with the CLASSIFY_*
// variables that are set.
func (c *Config) ApplyEnvironment() {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	override(&c.Store.Backend, EnvStoreBackend)
	override(&c.Store.Dir, EnvStoreDir)
	override(&c.Store.SQLite.Path, EnvSQLitePath)
	override(&c.Store.S3.Bucket, EnvS3Bucket)
	override(&c.Store.S3.Prefix, EnvS3Prefix)
	override(&c.Store.S3.Region, EnvS3Region)
	override(&c.Store.Vault.Mount, EnvVaultMount)
	override(&c.Store.Vault.Prefix, EnvVaultPrefix)
	override(&c.Log.Level, EnvLogLevel)
	override(&c.Log.Format, EnvLogFormat)
}

// Validate checks every setting and reports all problems at once, keyed by
// their YAML path.
func (c *Config) Validate() error {
	errs := errsx.Map{}

	if c.Version == "" {
		c.Version = "1"
	}
	if _, err := monitoring.ParseLogLevel(c.Log.Level); err != nil {
		errs.Set("log.level", err)
	}
	if _, err := monitoring.ParseLogFormat(c.Log.Format); err != nil {
		errs.Set("log.format", err)
	}

	switch strings.ToLower(c.Store.Backend) {
	case "file":
		if strings.TrimSpace(c.Store.Dir) == "" {
			errs.Set("store.dir", errors.New("the file backend needs a directory"))
		}
	case "sqlite":
		if strings.TrimSpace(c.Store.SQLite.Path) == "" {
			errs.Set("store.sqlite.path", errors.New("the sqlite backend needs a database path"))
		}
	case "s3":
		if strings.TrimSpace(c.Store.S3.Bucket) == "" {
			errs.Set("store.s3.bucket", errors.New("the s3 backend needs a bucket"))
		}
	case "vault":
		if strings.TrimSpace(c.Store.Vault.Mount) == "" {
			errs.Set("store.vault.mount", errors.New("the vault backend needs a mount path"))
		}
	default:
		errs.Set("store.backend", fmt.Errorf("unknown backend '%s' (expected file, sqlite, s3 or vault)", c.Store.Backend))
	}

	return errs.AsError()
}

// Logger builds the diagnostics logger described by the configuration.
func (c *Config) Logger() *slog.Logger {
	level, _ := monitoring.ParseLogLevel(c.Log.Level)
	format, _ := monitoring.ParseLogFormat(c.Log.Format)
	return monitoring.NewLogger(monitoring.LoggerConfig{
		Level:     level,
		Format:    format,
		Output:    os.Stderr,
		Component: "cli",
	})
}

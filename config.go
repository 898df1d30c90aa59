package deckport

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/deckport/blob"
)

// Config holds all configuration for the deckport engine, the CLI and the
// server. Every field can be overridden with a DECKPORT_* environment
// variable (DECKPORT_DB_PATH, DECKPORT_BUCKET_ROOT, DECKPORT_LOG_LEVEL, ...).
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.deckport/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path" envconfig:"DB_PATH"`

	// DBName names the database file when DBPath is empty.
	DBName string `json:"db_name" yaml:"db_name" envconfig:"DB_NAME"`

	// StorageDir controls where the database and the default bucket live
	// when no explicit path is set: "home" (default) uses ~/.deckport/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir" envconfig:"STORAGE_DIR"`

	Bucket BucketConfig `json:"bucket" yaml:"bucket" envconfig:"BUCKET"`

	// SchoolCode prefixes lesson codes and storage paths.
	SchoolCode string `json:"school_code" yaml:"school_code" envconfig:"SCHOOL_CODE"`

	// OutputDir is where extractions are written by default.
	OutputDir string `json:"output_dir" yaml:"output_dir" envconfig:"OUTPUT_DIR"`

	// Workers bounds parallel deck extraction. 0 means one per CPU.
	Workers int `json:"workers" yaml:"workers" envconfig:"WORKERS"`

	Log    LogConfig    `json:"log" yaml:"log" envconfig:"LOG"`
	Server ServerConfig `json:"server" yaml:"server" envconfig:"SERVER"`
}

// BucketConfig configures the local blob bucket.
type BucketConfig struct {
	// Root is the bucket directory. Defaults to <storage dir>/bucket.
	Root       string `json:"root" yaml:"root" envconfig:"ROOT"`
	Name       string `json:"name" yaml:"name" envconfig:"NAME"`
	BaseURL    string `json:"base_url" yaml:"base_url" envconfig:"BASE_URL"`
	SigningKey string `json:"signing_key" yaml:"signing_key" envconfig:"SIGNING_KEY"`

	SignedURLTTL time.Duration `json:"signed_url_ttl" yaml:"signed_url_ttl" envconfig:"SIGNED_URL_TTL"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" envconfig:"LEVEL"`    // debug, info, warn, error
	Format string `json:"format" yaml:"format" envconfig:"FORMAT"` // text or json
}

type ServerConfig struct {
	Addr        string `json:"addr" yaml:"addr" envconfig:"ADDR"`
	APIKey      string `json:"api_key" yaml:"api_key" envconfig:"API_KEY"`
	CORSOrigins string `json:"cors_origins" yaml:"cors_origins" envconfig:"CORS_ORIGINS"`
}

// DefaultConfig returns a Config with sensible defaults for local use.
// Data is stored in ~/.deckport/ by default.
func DefaultConfig() Config {
	return Config{
		DBName:     "deckport",
		StorageDir: "home",
		Bucket: BucketConfig{
			Name:         "deckport",
			BaseURL:      "http://localhost:8080/blobs",
			SignedURLTTL: time.Hour,
		},
		SchoolCode: "DMT",
		OutputDir:  "output",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// LoadConfig builds a Config from defaults, the optional YAML or JSON file
// at path, a .env file in the working directory and DECKPORT_* variables,
// in that order of precedence.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		// JSON is a subset of YAML, so one decoder serves both.
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: parsing %s: %w", ErrInvalidConfig, path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("loading .env", "error", err)
	}
	if err := envconfig.Process("DECKPORT", &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch c.StorageDir {
	case "", "home", "local", "cwd":
	default:
		return fmt.Errorf("%w: storage_dir %q (want home or local)", ErrInvalidConfig, c.StorageDir)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.Bucket.SignedURLTTL < 0 {
		return fmt.Errorf("%w: bucket.signed_url_ttl must be >= 0", ErrInvalidConfig)
	}
	if strings.ContainsAny(c.SchoolCode, "/\\") {
		return fmt.Errorf("%w: school_code %q contains a path separator", ErrInvalidConfig, c.SchoolCode)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q (want text or json)", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// LogLevel parses Log.Level. An empty level is info.
func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return lvl, fmt.Errorf("%w: log.level %q", ErrInvalidConfig, c.Log.Level)
	}
	return lvl, nil
}

// storageDir is the directory holding the default database and bucket.
func (c *Config) storageDir() string {
	switch c.StorageDir {
	case "local", "cwd":
		return "."
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return "." // fallback to cwd
		}
		return filepath.Join(home, ".deckport")
	}
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	name := c.DBName
	if name == "" {
		name = "deckport"
	}
	return filepath.Join(c.storageDir(), name+".db")
}

// bucketConfig resolves the bucket root against the storage dir.
func (c *Config) bucketConfig() blob.Config {
	root := c.Bucket.Root
	if root == "" {
		root = filepath.Join(c.storageDir(), "bucket")
	}
	return blob.Config{
		Root:       root,
		Name:       c.Bucket.Name,
		BaseURL:    c.Bucket.BaseURL,
		SigningKey: c.Bucket.SigningKey,
	}
}

func (c *Config) schoolCode() string {
	if c.SchoolCode == "" {
		return "DMT"
	}
	return c.SchoolCode
}

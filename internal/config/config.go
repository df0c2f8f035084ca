// internal/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap/zapcore"
)

const (
	// Dir is the marker directory holding a workspace's database and revisions.
	Dir = ".scribe"
	// File is the config file name inside Dir.
	File = "config.json"
)

// Statistics policies, see Config.Stats.Policy.
const (
	StatsAlways    = "always"
	StatsOnSuccess = "on-success"
)

type Config struct {
	Workspace struct {
		Root string `json:"root" env:"ROOT"`
	} `json:"workspace"`

	Server struct {
		Host string `json:"host" env:"HOST"`
		Port int    `json:"port" env:"PORT"`
	} `json:"server"`

	Database struct {
		Path string `json:"path" env:"DB_PATH"`
	} `json:"database"`

	Safe struct {
		CacheSize   int `json:"cache_size" env:"CACHE_SIZE"`
		CompressMin int `json:"compress_min" env:"COMPRESS_MIN"` // bytes
	} `json:"safe"`

	Stats struct {
		Policy string `json:"policy" env:"STATS_POLICY"` // always, on-success
	} `json:"stats"`

	LogLevel string `json:"log_level" env:"LOG_LEVEL"` // debug, info, warn, error
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.Workspace.Root = "."
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 7463
	cfg.Safe.CacheSize = 256
	cfg.Safe.CompressMin = 1024
	cfg.Stats.Policy = StatsAlways
	cfg.LogLevel = "info"
	return &cfg
}

// Path returns the config file location for a workspace root.
func Path(root string) string {
	return filepath.Join(root, Dir, File)
}

// Load reads path over the defaults, then applies SCRIBE_* environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	return load(path, "")
}

// LoadWorkspace loads the config file kept inside root. Relative roots and
// database paths from the file resolve against root.
func LoadWorkspace(root string) (*Config, error) {
	return load(Path(root), root)
}

func load(path, root string) (*Config, error) {
	config := Default()
	if root != "" {
		config.Workspace.Root = root
	}

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(config); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if err := env.ParseWithOptions(config, env.Options{Prefix: "SCRIBE_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if root != "" {
		if !filepath.IsAbs(config.Workspace.Root) {
			config.Workspace.Root = filepath.Join(root, config.Workspace.Root)
		}
		if config.Database.Path != "" && !filepath.IsAbs(config.Database.Path) {
			config.Database.Path = filepath.Join(root, config.Database.Path)
		}
	}

	if config.Database.Path == "" {
		config.Database.Path = filepath.Join(config.Workspace.Root, Dir, "db")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Stats.Policy {
	case StatsAlways, StatsOnSuccess:
	default:
		return fmt.Errorf("invalid stats policy %q", c.Stats.Policy)
	}
	if c.Safe.CacheSize <= 0 {
		return fmt.Errorf("safe cache_size must be positive")
	}
	return nil
}

// Save writes c as indented JSON to path.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

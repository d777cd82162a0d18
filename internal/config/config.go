// Package config loads the daemon configuration from YAML with sane
// defaults for every field, so an empty path runs a memory-backed
// daemon out of the box.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen      string  `yaml:"listen"`
	TemplateDir string  `yaml:"template_dir"`
	Storage     Storage `yaml:"storage"`
	Cache       Cache   `yaml:"cache"`
	Logging     Logging `yaml:"logging"`
}

type Storage struct {
	// Driver selects the backend: memory, sqlite or s3.
	Driver string `yaml:"driver"`

	SQLitePath string `yaml:"sqlite_path"`

	S3 S3 `yaml:"s3"`
}

type S3 struct {
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
	// Key prefix inside the bucket; credentials come from
	// WORLDVAULT_S3_ACCESS_KEY_ID / WORLDVAULT_S3_SECRET_ACCESS_KEY.
	Prefix string `yaml:"prefix"`
}

type Cache struct {
	// MemoryCeilingRegions caps resident regions per disk-backed world.
	// 0 = unlimited.
	MemoryCeilingRegions int `yaml:"memory_ceiling_regions"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("worldd.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("worldd.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Listen:      ":8420",
		TemplateDir: "",
		Storage: Storage{
			Driver:     "memory",
			SQLitePath: "data/worlds.db",
		},
		Cache: Cache{
			MemoryCeilingRegions: 0,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.Listen = strings.TrimSpace(c.Listen)
	if c.Listen == "" {
		c.Listen = ":8420"
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if strings.TrimSpace(c.Storage.SQLitePath) == "" {
		c.Storage.SQLitePath = "data/worlds.db"
	}
	c.Storage.S3.Prefix = strings.Trim(c.Storage.S3.Prefix, "/")
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			return fmt.Errorf("storage.sqlite_path must not be empty")
		}
	case "s3":
		if strings.TrimSpace(c.Storage.S3.Endpoint) == "" {
			return fmt.Errorf("storage.s3.endpoint must not be empty")
		}
		if strings.TrimSpace(c.Storage.S3.Bucket) == "" {
			return fmt.Errorf("storage.s3.bucket must not be empty")
		}
	default:
		return fmt.Errorf("unknown storage driver: %s", c.Storage.Driver)
	}
	if c.Cache.MemoryCeilingRegions < 0 {
		return fmt.Errorf("cache.memory_ceiling_regions must be >= 0")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown logging format: %s", c.Logging.Format)
	}
	return nil
}

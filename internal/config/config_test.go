package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmptyPathDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":8420" {
		t.Fatalf("listen = %q", cfg.Listen)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("driver = %q", cfg.Storage.Driver)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worldd.yaml")
	doc := `
listen: ":9001"
template_dir: /srv/templates
storage:
  driver: SQLITE
  sqlite_path: /srv/worlds.db
cache:
  memory_ceiling_regions: 32
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9001" || cfg.TemplateDir != "/srv/templates" {
		t.Fatalf("cfg = %+v", cfg)
	}
	// Normalize lowercases the driver.
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.SQLitePath != "/srv/worlds.db" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Cache.MemoryCeilingRegions != 32 {
		t.Fatalf("cache = %+v", cfg.Cache)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "tape" }},
		{"s3 without endpoint", func(c *Config) { c.Storage.Driver = "s3" }},
		{"negative ceiling", func(c *Config) { c.Cache.MemoryCeilingRegions = -1 }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tc := range cases {
		cfg := defaults()
		cfg.Normalize()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestValidateS3Complete(t *testing.T) {
	cfg := defaults()
	cfg.Storage.Driver = "s3"
	cfg.Storage.S3.Endpoint = "https://r2.example.com"
	cfg.Storage.S3.Bucket = "worlds"
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestNewLoggerBuilds(t *testing.T) {
	for _, lc := range []Logging{
		{Level: "debug", Format: "console"},
		{Level: "warn", Format: "json"},
	} {
		log, err := NewLogger(lc)
		if err != nil {
			t.Fatalf("%+v: %v", lc, err)
		}
		log.Debug("probe")
	}
}

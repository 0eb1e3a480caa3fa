package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(ConfigFileEnv, "")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Storage.Driver != StorageSQLite || cfg.Ledger.Driver != LedgerNone {
		t.Fatalf("drivers: storage=%q ledger=%q", cfg.Storage.Driver, cfg.Ledger.Driver)
	}
	if cfg.Accumulation.MaxConflicts != 16 || cfg.Accumulation.StoreRetries != 5 || cfg.Accumulation.ReplayWindow != 64 {
		t.Fatalf("accumulation defaults: %+v", cfg.Accumulation)
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cipheragg.yaml")
	body := strings.Join([]string{
		"log_mode: production",
		"storage:",
		"  driver: redis",
		"  redis_addr: cache:6379",
		"  redis_prefix: tallies",
		"ledger:",
		"  driver: csv",
		"  csv_path: /tmp/out.csv",
		"  csv_fields: [name]",
		"accumulation:",
		"  max_conflicts: 4",
		"  backoff_initial: 10ms",
		"http:",
		"  addr: 127.0.0.1:9000",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigFileEnv, path)
	t.Setenv("MAX_CONFLICTS", "9")
	t.Setenv("BACKOFF_MAX_MS", "40")
	t.Setenv("LEDGER_DRIVER", "BOTH")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogMode != "production" || cfg.Storage.Driver != StorageRedis || cfg.Storage.RedisPrefix != "tallies" {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.Accumulation.MaxConflicts != 9 {
		t.Fatalf("env override: want=9 got=%d", cfg.Accumulation.MaxConflicts)
	}
	if cfg.Accumulation.BackoffInitial != 10*time.Millisecond || cfg.Accumulation.BackoffMax != 40*time.Millisecond {
		t.Fatalf("backoff: %+v", cfg.Accumulation)
	}
	if cfg.Ledger.Driver != LedgerBoth || len(cfg.Ledger.CSVFields) != 1 {
		t.Fatalf("ledger: %+v", cfg.Ledger)
	}
	if len(cfg.HTTP.CORSOrigins) != 2 || cfg.HTTP.CORSOrigins[1] != "http://b.example" {
		t.Fatalf("cors origins: %v", cfg.HTTP.CORSOrigins)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		{name: "memory", mutate: func(c *Config) { c.Storage.Driver = StorageMemory }, ok: true},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Driver = "etcd" }},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Driver = StoragePostgres }},
		{name: "redis without addr", mutate: func(c *Config) { c.Storage.Driver = StorageRedis }},
		{name: "unknown ledger", mutate: func(c *Config) { c.Ledger.Driver = "kafka" }},
		{name: "csv without path", mutate: func(c *Config) { c.Ledger.Driver = LedgerCSV; c.Ledger.CSVPath = "" }},
		{name: "negative queue", mutate: func(c *Config) { c.Ledger.Queue = -1 }},
		{name: "separate metrics listener", mutate: func(c *Config) { c.HTTP.MetricsAddr = "127.0.0.1:9102" }, ok: true},
		{name: "metrics listener on admin addr", mutate: func(c *Config) { c.HTTP.MetricsAddr = c.HTTP.Addr }},
		{name: "metrics listener while disabled", mutate: func(c *Config) {
			c.HTTP.MetricsEnabled = false
			c.HTTP.MetricsAddr = "127.0.0.1:9102"
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

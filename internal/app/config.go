package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/cipheragg/internal/accumulation"
	"github.com/yungbote/cipheragg/internal/ledger"
	"github.com/yungbote/cipheragg/internal/platform/envutil"
)

// ConfigFileEnv names the optional YAML file read before the environment.
const ConfigFileEnv = "CIPHERAGG_CONFIG"

const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"

	LedgerNone = "none"
	LedgerDB   = "db"
	LedgerCSV  = "csv"
	LedgerBoth = "both"
)

type StorageConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisPass   string `yaml:"redis_password"`
	RedisDB     int    `yaml:"redis_db"`
	RedisPrefix string `yaml:"redis_prefix"`
}

type LedgerConfig struct {
	Driver  string `yaml:"driver"`
	CSVPath string `yaml:"csv_path"`
	// CSVFields become dedicated CSV columns, in order. Other fields land in extra_fields.
	CSVFields []string `yaml:"csv_fields"`
	Queue     int      `yaml:"queue"`
}

type AccumulationConfig struct {
	MaxConflicts   int           `yaml:"max_conflicts"`
	StoreRetries   int           `yaml:"store_retries"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
	LocalLocking   bool          `yaml:"local_locking"`
	ReplayWindow   int           `yaml:"replay_window"`
}

type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	CORSOrigins    []string `yaml:"cors_origins"`
	MetricsEnabled bool     `yaml:"metrics_enabled"`
	// MetricsAddr, when set, serves /metrics on its own listener as well.
	MetricsAddr    string   `yaml:"metrics_addr"`
}

type Config struct {
	LogMode      string             `yaml:"log_mode"`
	Storage      StorageConfig      `yaml:"storage"`
	Ledger       LedgerConfig       `yaml:"ledger"`
	Accumulation AccumulationConfig `yaml:"accumulation"`
	HTTP         HTTPConfig         `yaml:"http"`
}

func DefaultConfig() Config {
	return Config{
		LogMode: "development",
		Storage: StorageConfig{
			Driver:      StorageSQLite,
			SQLitePath:  "cipheragg.db",
			RedisPrefix: "cipheragg",
		},
		Ledger: LedgerConfig{
			Driver:    LedgerNone,
			CSVPath:   "contributions.csv",
			CSVFields: []string{"name", "gender"},
			Queue:     ledger.DefaultQueueSize,
		},
		Accumulation: AccumulationConfig{
			MaxConflicts:   accumulation.DefaultMaxConflicts,
			StoreRetries:   accumulation.DefaultStoreRetries,
			BackoffInitial: accumulation.DefaultBackoffInitial,
			BackoffMax:     accumulation.DefaultBackoffMax,
			LocalLocking:   true,
			ReplayWindow:   accumulation.DefaultReplayWindow,
		},
		HTTP: HTTPConfig{
			Addr:           ":8080",
			MetricsEnabled: true,
		},
	}
}

// LoadConfig layers defaults, the optional YAML file, and the environment.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if path := envutil.String(ConfigFileEnv, ""); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.LogMode = envutil.String("LOG_MODE", c.LogMode)

	c.Storage.Driver = envutil.String("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.SQLitePath = envutil.String("SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.PostgresDSN = envutil.String("POSTGRES_DSN", c.Storage.PostgresDSN)
	c.Storage.RedisAddr = envutil.String("REDIS_ADDR", c.Storage.RedisAddr)
	c.Storage.RedisPass = envutil.String("REDIS_PASSWORD", c.Storage.RedisPass)
	c.Storage.RedisDB = envutil.Int("REDIS_DB", c.Storage.RedisDB)
	c.Storage.RedisPrefix = envutil.String("REDIS_PREFIX", c.Storage.RedisPrefix)

	c.Ledger.Driver = envutil.String("LEDGER_DRIVER", c.Ledger.Driver)
	c.Ledger.CSVPath = envutil.String("LEDGER_CSV_PATH", c.Ledger.CSVPath)
	if raw, ok := envutil.Lookup("LEDGER_CSV_FIELDS"); ok {
		c.Ledger.CSVFields = splitList(raw)
	}
	c.Ledger.Queue = envutil.Int("LEDGER_QUEUE", c.Ledger.Queue)

	c.Accumulation.MaxConflicts = envutil.Int("MAX_CONFLICTS", c.Accumulation.MaxConflicts)
	c.Accumulation.StoreRetries = envutil.Int("STORE_RETRIES", c.Accumulation.StoreRetries)
	c.Accumulation.BackoffInitial = envutil.Duration("BACKOFF_INITIAL_MS", time.Millisecond, c.Accumulation.BackoffInitial)
	c.Accumulation.BackoffMax = envutil.Duration("BACKOFF_MAX_MS", time.Millisecond, c.Accumulation.BackoffMax)
	c.Accumulation.LocalLocking = envutil.Bool("LOCAL_LOCKING", c.Accumulation.LocalLocking)
	c.Accumulation.ReplayWindow = envutil.Int("REPLAY_WINDOW", c.Accumulation.ReplayWindow)

	c.HTTP.Addr = envutil.String("HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.MetricsEnabled = envutil.Bool("METRICS_ENABLED", c.HTTP.MetricsEnabled)
	c.HTTP.MetricsAddr = envutil.String("METRICS_ADDR", c.HTTP.MetricsAddr)
	if raw, ok := envutil.Lookup("CORS_ORIGINS"); ok {
		c.HTTP.CORSOrigins = splitList(raw)
	}
}

func (c *Config) normalize() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Ledger.Driver = strings.ToLower(strings.TrimSpace(c.Ledger.Driver))
	if c.Ledger.Driver == "" {
		c.Ledger.Driver = LedgerNone
	}
}

// Validate rejects driver names and settings that cannot be wired.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			return fmt.Errorf("storage driver postgres requires POSTGRES_DSN")
		}
	case StorageRedis:
		if strings.TrimSpace(c.Storage.RedisAddr) == "" {
			return fmt.Errorf("storage driver redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	switch c.Ledger.Driver {
	case LedgerNone, LedgerDB:
	case LedgerCSV, LedgerBoth:
		if strings.TrimSpace(c.Ledger.CSVPath) == "" {
			return fmt.Errorf("ledger driver %s requires LEDGER_CSV_PATH", c.Ledger.Driver)
		}
	default:
		return fmt.Errorf("unsupported ledger driver %q", c.Ledger.Driver)
	}
	if c.Ledger.Queue < 0 {
		return fmt.Errorf("ledger queue must not be negative")
	}
	if addr := strings.TrimSpace(c.HTTP.MetricsAddr); addr != "" {
		if !c.HTTP.MetricsEnabled {
			return fmt.Errorf("METRICS_ADDR requires METRICS_ENABLED")
		}
		if addr == strings.TrimSpace(c.HTTP.Addr) {
			return fmt.Errorf("METRICS_ADDR must differ from HTTP_ADDR")
		}
	}
	return nil
}

func (c Config) wantsDBLedger() bool {
	return c.Ledger.Driver == LedgerDB || c.Ledger.Driver == LedgerBoth
}

func (c Config) wantsCSVLedger() bool {
	return c.Ledger.Driver == LedgerCSV || c.Ledger.Driver == LedgerBoth
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	// Pure-Go SQLite driver registered as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/yungbote/cipheragg/internal/domain"
	"github.com/yungbote/cipheragg/internal/platform/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
	// MaxOpenConns bounds the pool. SQLite in-memory databases need 1.
	MaxOpenConns int
	Verbose      bool
}

// Service owns one GORM connection pool.
type Service struct {
	db     *gorm.DB
	driver string
	log    *logger.Logger
}

func NewService(cfg Config, log *logger.Logger) (*Service, error) {
	if log == nil {
		log = logger.NewNop()
	}
	serviceLog := log.With("service", "DatabaseService")
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))

	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: SQLiteDSN(cfg.SQLitePath)})
	case DriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, fmt.Errorf("postgres driver requires a DSN")
		}
		dialector = postgres.Open(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	mode := gormLogger.Silent
	if cfg.Verbose {
		mode = gormLogger.Warn
	}
	serviceLog.Info("Connecting to database...", "driver", driver)
	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(mode),
	})
	if err != nil {
		serviceLog.Error("Failed to connect to database", "driver", driver, "error", err)
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", driver, err)
		}
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return &Service{db: db, driver: driver, log: serviceLog}, nil
}

// SQLiteDSN turns a path into a modernc DSN with a busy timeout. An empty
// path or ":memory:" yields a private shared-cache in-memory database.
func SQLiteDSN(path string) string {
	path = strings.TrimSpace(path)
	switch {
	case path == "" || path == ":memory:":
		return "file:cipheragg?mode=memory&cache=shared&_pragma=busy_timeout(5000)"
	case strings.HasPrefix(path, "file:"):
		return path
	default:
		return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...", "driver", s.driver)
	if err := AutoMigrate(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}

// AutoMigrate creates or updates every persisted table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(domain.Models()...)
}

func (s *Service) DB() *gorm.DB {
	return s.db
}

func (s *Service) Driver() string {
	return s.driver
}

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

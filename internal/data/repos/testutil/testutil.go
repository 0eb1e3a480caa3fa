package testutil

import (
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/cipheragg/internal/db"
	"github.com/yungbote/cipheragg/internal/platform/logger"
)

var dbSeq atomic.Int64

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logg, err := logger.New("test")
	if err != nil {
		tb.Fatalf("failed to init logger: %v", err)
	}
	return logg
}

// DB opens a fresh migrated in-memory SQLite database for the test.
// Each call gets its own database so tests never share rows.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	name := fmt.Sprintf("file:test_%d_%d?mode=memory&cache=shared&_pragma=busy_timeout(5000)", os.Getpid(), dbSeq.Add(1))
	svc, err := db.NewService(db.Config{
		Driver:       db.DriverSQLite,
		SQLitePath:   name,
		MaxOpenConns: 1,
	}, logger.NewNop())
	if err != nil {
		tb.Fatalf("failed to open sqlite: %v", err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		tb.Fatalf("failed to migrate sqlite: %v", err)
	}
	tb.Cleanup(func() { _ = svc.Close() })
	return svc.DB()
}

// PostgresDB connects to TEST_POSTGRES_DSN, or skips the test when unset.
func PostgresDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		tb.Skip("set TEST_POSTGRES_DSN to run postgres integration tests")
	}
	svc, err := db.NewService(db.Config{Driver: db.DriverPostgres, PostgresDSN: dsn}, logger.NewNop())
	if err != nil {
		tb.Fatalf("failed to init test db: %v", err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		tb.Fatalf("failed to migrate test db: %v", err)
	}
	tb.Cleanup(func() { _ = svc.Close() })
	return svc.DB()
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

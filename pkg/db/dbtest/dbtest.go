// Package dbtest opens migrated in-memory sqlite databases for tests.
package dbtest

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/mystictxt/internal/migration"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// Open returns a fresh schema per test. The pool is capped at one connection,
// so code under test must not reach the root handle while a transaction is open.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := unsafeNameChars.ReplaceAllString(t.Name(), "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.AutoMigrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

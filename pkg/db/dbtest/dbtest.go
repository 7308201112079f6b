// Package dbtest opens throwaway sqlite databases carrying the same tables as
// the Postgres migrations, for repository tests.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/medicart/medicart-api/pkg/db"
)

// Open returns an isolated in-memory database with every table created.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// One connection serialises transactions the way row locks would.
	sqlDB.SetMaxOpenConns(1)
	if err := db.ApplySQLiteSchema(conn); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

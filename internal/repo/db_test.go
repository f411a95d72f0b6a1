package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newRepoDB opens a private in-memory database and migrates every model.
func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	// one connection: shared-cache memory databases report "table is locked"
	// under concurrent writers instead of waiting
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestOpenSQLite_MissingParentDir(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "missing", "orderbot.db")
	db, err := OpenSQLite(bad)
	if db != nil || !os.IsNotExist(err) {
		t.Fatalf("OpenSQLite(%q) = (%v, %v), want not-exist error", bad, db, err)
	}
}

func TestOpen_SQLiteFile(t *testing.T) {
	db, err := Open(Options{Driver: "SQLite", Path: filepath.Join(t.TempDir(), "orderbot.db"), Silent: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	pragmas := map[string]string{"journal_mode": "wal", "foreign_keys": "1"}
	for name, want := range pragmas {
		var got string
		if err := db.Raw("PRAGMA " + name).Row().Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s: %v", name, err)
		}
		if strings.ToLower(got) != want {
			t.Fatalf("PRAGMA %s=%q want %q", name, got, want)
		}
	}
	if n := sqlDB.Stats().MaxOpenConnections; n != sqlitePoolSize {
		t.Fatalf("MaxOpenConnections=%d want %d", n, sqlitePoolSize)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, table := range []string{"tenants", "catalog_items", "conversations", "orders", "message_receipts"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("missing table %s", table)
		}
	}
}

func TestOpen_TracingPlugin(t *testing.T) {
	db, err := Open(Options{Path: filepath.Join(t.TempDir(), "traced.db"), Tracing: true, Silent: true})
	if err != nil {
		t.Fatalf("Open with tracing: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
}

func TestOpen_RejectsBadOptions(t *testing.T) {
	for name, opts := range map[string]Options{
		"driver":       {Driver: "oracle"},
		"postgres dsn": {Driver: "postgres", DSN: "  "},
	} {
		if _, err := Open(opts); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

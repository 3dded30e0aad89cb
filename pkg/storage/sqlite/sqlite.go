// Package sqlite provides a SQLite-backed storage driver using ent's SQL
// dialect.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/mattn/go-sqlite3"

	entdriver "github.com/papercomputeco/drills/pkg/storage/ent/driver"
	"github.com/papercomputeco/drills/pkg/storage/ent/migrate"
)

// connParams enables foreign keys (needed for cascading study set removal),
// waits on locks instead of failing with SQLITE_BUSY, and makes every
// transaction take the write lock up front so review updates serialize.
const connParams = "_fk=1&_busy_timeout=5000&_txlock=immediate"

// Driver implements storage.Driver using SQLite via the ent driver.
type Driver struct {
	*entdriver.EntDriver
}

// NewDriver creates a new SQLite-backed store.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewDriver(ctx context.Context, dbPath string) (*Driver, error) {
	memory := dbPath == ":memory:"

	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if memory {
		// every new connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL journal: %w", err)
	}

	drv := entsql.OpenDB(dialect.SQLite, db)

	// Create or extend the schema. This handles append-only schema changes
	// (new tables, columns, indexes).
	if err := migrate.Create(ctx, drv); err != nil {
		drv.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Driver{
		EntDriver: entdriver.New(drv),
	}, nil
}

func dsn(dbPath string) string {
	if dbPath == ":memory:" {
		return "file::memory:?" + connParams
	}
	if strings.Contains(dbPath, "?") {
		return dbPath + "&" + connParams
	}
	return dbPath + "?" + connParams
}

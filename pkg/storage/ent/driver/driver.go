// Package entdriver implements storage.Driver on top of ent's SQL dialect
// builder. It is database-agnostic and is embedded by the sqlite and
// postgres drivers.
package entdriver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/drills/pkg/storage"
)

var _ storage.Driver = (*EntDriver)(nil)

// EntDriver provides storage operations using an ent SQL driver.
type EntDriver struct {
	Driver *entsql.Driver
}

// New wraps an ent SQL driver.
func New(drv *entsql.Driver) *EntDriver {
	return &EntDriver{Driver: drv}
}

// Close closes the underlying database.
func (ed *EntDriver) Close() error {
	return ed.Driver.Close()
}

func (ed *EntDriver) builder() *entsql.DialectBuilder {
	return entsql.Dialect(ed.Driver.Dialect())
}

// withTx runs fn inside a transaction, rolling back when fn fails.
func (ed *EntDriver) withTx(ctx context.Context, fn func(tx dialect.Tx) error) error {
	tx, err := ed.Driver.Tx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to roll back: %w", rerr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// exec runs a built statement.
func exec(ctx context.Context, q dialect.ExecQuerier, query string, args []any) (int64, error) {
	var res entsql.Result
	if err := q.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// scan runs a built query and scans every row into dst, a pointer to a
// slice of row structs.
func scan(ctx context.Context, q dialect.ExecQuerier, query string, args []any, dst any) error {
	rows := &entsql.Rows{}
	if err := q.Query(ctx, query, args, rows); err != nil {
		return err
	}
	defer rows.Close()
	return entsql.ScanSlice(rows, dst)
}

// ts normalizes a timestamp before binding it so that every stored value
// shares one offset and precision.
func ts(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func tsPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ts(*t)
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal json column: %w", err)
	}
	return string(b), nil
}

func decodeJSON(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to unmarshal json column: %w", err)
	}
	return nil
}

// Package table creates, describes, lists and drops the dynamic spatial
// tables the gateway serves. One table per feature collection: an id
// primary key, one typed geometry column, caller-defined extra columns.
//
// The geometry column of a table is read back from the geometry_columns
// registry the store maintains, not inferred from column names.
package table

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/orata/spatial-gateway/internal/ident"
	"github.com/orata/spatial-gateway/internal/store"
)

const DefaultSRID = 4326

type ColumnSpec struct {
	Name     string
	SQLType  string
	Nullable bool
}

type Spec struct {
	Name         string
	GeometryType string
	SRID         int
	Columns      []ColumnSpec
}

type ColumnInfo struct {
	Name     string
	DataType string
	UDTName  string
	Nullable bool
}

// GeometryMeta is the stored schema metadata registered for a table's
// geometry column at creation time.
type GeometryMeta struct {
	Column string
	SRID   int
	Type   string
}

type NotFoundError struct {
	Table string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("table %q not found", e.Table)
}

type CreationError struct {
	Table string
	Err   error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("create table %q: %v", e.Table, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

type DeletionError struct {
	Table string
	Err   error
}

func (e *DeletionError) Error() string {
	return fmt.Sprintf("drop table %q: %v", e.Table, e.Err)
}

func (e *DeletionError) Unwrap() error { return e.Err }

type Gateway struct {
	db     store.DB
	logger *slog.Logger
}

func New(db store.DB, logger *slog.Logger) *Gateway {
	return &Gateway{db: db, logger: logger}
}

// Create makes the table if it does not exist yet. Creating an existing
// table is a silent no-op, not a merge.
func (g *Gateway) Create(ctx context.Context, spec Spec) error {
	sql, err := createTableSQL(spec)
	if err != nil {
		return err
	}
	err = store.InTx(ctx, g.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, sql)
		return err
	})
	if err != nil {
		return &CreationError{Table: spec.Name, Err: err}
	}
	g.logger.Info("table created", "table", spec.Name, "geometry_type", spec.GeometryType, "srid", spec.SRID)
	return nil
}

// List returns every public table carrying a geometry column.
func (g *Gateway) List(ctx context.Context) ([]string, error) {
	rows, err := g.db.Query(ctx, listTablesSQL)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Describe returns the table's columns in ordinal order.
func (g *Gateway) Describe(ctx context.Context, name string) ([]ColumnInfo, error) {
	name, err := ident.Validate(name)
	if err != nil {
		return nil, err
	}
	rows, err := g.db.Query(ctx, describeSQL, name)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", name, err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		var nullable string
		if err := rows.Scan(&c.Name, &c.DataType, &c.UDTName, &nullable); err != nil {
			return nil, fmt.Errorf("describe %s: %w", name, err)
		}
		c.Nullable = nullable == "YES"
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, &NotFoundError{Table: name}
	}
	return cols, nil
}

// Drop removes the table and everything depending on it. Dropping an
// absent table succeeds.
func (g *Gateway) Drop(ctx context.Context, name string) error {
	sql, err := dropTableSQL(name)
	if err != nil {
		return err
	}
	err = store.InTx(ctx, g.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, sql)
		return err
	})
	if err != nil {
		return &DeletionError{Table: name, Err: err}
	}
	g.logger.Info("table dropped", "table", name)
	return nil
}

// GeometryColumn looks up the registered geometry column and SRID for a
// table from the store's geometry_columns view.
func (g *Gateway) GeometryColumn(ctx context.Context, name string) (GeometryMeta, error) {
	name, err := ident.Validate(name)
	if err != nil {
		return GeometryMeta{}, err
	}
	var meta GeometryMeta
	err = g.db.QueryRow(ctx, geometryColumnSQL, name).Scan(&meta.Column, &meta.SRID, &meta.Type)
	if errors.Is(err, pgx.ErrNoRows) {
		return GeometryMeta{}, &NotFoundError{Table: name}
	}
	if err != nil {
		return GeometryMeta{}, fmt.Errorf("geometry metadata for %s: %w", name, err)
	}
	return meta, nil
}

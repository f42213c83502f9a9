// Package repository implements generic feature CRUD over any validated
// spatial table. Rows come back via RETURNING and are normalized into
// canonical Features; every mutation runs in its own transaction.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb/geojson"

	"github.com/orata/spatial-gateway/internal/feature"
	"github.com/orata/spatial-gateway/internal/geometry"
	"github.com/orata/spatial-gateway/internal/store"
	"github.com/orata/spatial-gateway/internal/table"
)

var (
	ErrNotFound         = errors.New("feature not found")
	ErrNoFieldsToUpdate = errors.New("no fields to update")
)

type InsertError struct {
	Err error
}

func (e *InsertError) Error() string { return "insert failed: " + e.Err.Error() }

func (e *InsertError) Unwrap() error { return e.Err }

type UpdateError struct {
	Err error
}

func (e *UpdateError) Error() string { return "update failed: " + e.Err.Error() }

func (e *UpdateError) Unwrap() error { return e.Err }

// Draft is a feature to insert: a geometry plus the non-geometry columns
// to write. Null-valued properties are omitted from the insert rather than
// written as explicit NULLs.
type Draft struct {
	Geometry   *geojson.Geometry
	Properties map[string]any
}

// Patch is a partial update. Only present keys are touched; a provided
// geometry is re-validated and re-encoded.
type Patch struct {
	Geometry   *geojson.Geometry
	Properties map[string]any
}

// MetaSource resolves the registered geometry column and SRID of a table.
type MetaSource interface {
	GeometryColumn(ctx context.Context, tbl string) (table.GeometryMeta, error)
}

type Repository struct {
	db     store.DB
	meta   MetaSource
	logger *slog.Logger
}

func New(db store.DB, meta MetaSource, logger *slog.Logger) *Repository {
	return &Repository{db: db, meta: meta, logger: logger}
}

func (r *Repository) Create(ctx context.Context, tbl string, draft Draft) (feature.Feature, error) {
	meta, err := r.meta.GeometryColumn(ctx, tbl)
	if err != nil {
		return feature.Feature{}, err
	}
	encoded, err := geometry.ToStorage(draft.Geometry, meta.SRID)
	if err != nil {
		return feature.Feature{}, err
	}

	cols, args := presentColumns(draft.Properties)
	args = append(args, encoded)
	sql, err := insertSQL(tbl, meta.Column, cols)
	if err != nil {
		return feature.Feature{}, err
	}

	row, err := r.mutate(ctx, sql, args)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return feature.Feature{}, &InsertError{Err: fmt.Errorf("no row returned")}
		}
		return feature.Feature{}, &InsertError{Err: err}
	}
	return feature.Normalizer{GeometryColumn: meta.Column}.Normalize(row)
}

func (r *Repository) Get(ctx context.Context, tbl string, id int64) (feature.Feature, error) {
	meta, err := r.meta.GeometryColumn(ctx, tbl)
	if err != nil {
		return feature.Feature{}, err
	}
	sql, err := selectSQL(tbl)
	if err != nil {
		return feature.Feature{}, err
	}
	rows, err := r.db.Query(ctx, sql, id)
	if err != nil {
		return feature.Feature{}, fmt.Errorf("get: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return feature.Feature{}, fmt.Errorf("get: %w", err)
		}
		return feature.Feature{}, ErrNotFound
	}
	colNames, vals, err := store.ScanRow(rows)
	if err != nil {
		return feature.Feature{}, fmt.Errorf("get: %w", err)
	}
	return feature.Normalizer{GeometryColumn: meta.Column}.Normalize(feature.SliceRow{Cols: colNames, Vals: vals})
}

// List returns a page of features in store-native order. Rows the
// normalizer cannot interpret are skipped, not fatal.
func (r *Repository) List(ctx context.Context, tbl string, offset, limit int) ([]feature.Feature, error) {
	meta, err := r.meta.GeometryColumn(ctx, tbl)
	if err != nil {
		return nil, err
	}
	sql, err := listSQL(tbl)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, sql, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	norm := feature.Normalizer{GeometryColumn: meta.Column}
	features := []feature.Feature{}
	skipped := 0
	for rows.Next() {
		colNames, vals, err := store.ScanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("list: %w", err)
		}
		f, err := norm.Normalize(feature.SliceRow{Cols: colNames, Vals: vals})
		if err != nil {
			skipped++
			continue
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	if skipped > 0 {
		r.logger.Warn("skipped unreadable rows", "table", tbl, "count", skipped)
	}
	return features, nil
}

func (r *Repository) Update(ctx context.Context, tbl string, id int64, patch Patch) (feature.Feature, error) {
	meta, err := r.meta.GeometryColumn(ctx, tbl)
	if err != nil {
		return feature.Feature{}, err
	}

	cols := sortedKeys(patch.Properties)
	if len(cols) == 0 && patch.Geometry == nil {
		return feature.Feature{}, ErrNoFieldsToUpdate
	}

	args := make([]any, 0, len(cols)+2)
	for _, c := range cols {
		args = append(args, patch.Properties[c])
	}
	if patch.Geometry != nil {
		encoded, err := geometry.ToStorage(patch.Geometry, meta.SRID)
		if err != nil {
			return feature.Feature{}, err
		}
		args = append(args, encoded)
	}
	args = append(args, id)

	sql, err := updateSQL(tbl, meta.Column, cols, patch.Geometry != nil)
	if err != nil {
		return feature.Feature{}, err
	}

	row, err := r.mutate(ctx, sql, args)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return feature.Feature{}, ErrNotFound
		}
		return feature.Feature{}, &UpdateError{Err: err}
	}
	return feature.Normalizer{GeometryColumn: meta.Column}.Normalize(row)
}

// Delete removes the feature and returns it as it was stored.
func (r *Repository) Delete(ctx context.Context, tbl string, id int64) (feature.Feature, error) {
	meta, err := r.meta.GeometryColumn(ctx, tbl)
	if err != nil {
		return feature.Feature{}, err
	}
	sql, err := deleteSQL(tbl)
	if err != nil {
		return feature.Feature{}, err
	}
	row, err := r.mutate(ctx, sql, []any{id})
	if err != nil {
		return feature.Feature{}, err
	}
	return feature.Normalizer{GeometryColumn: meta.Column}.Normalize(row)
}

// mutate runs one writing statement in its own transaction and returns the
// single row it returned. ErrNotFound when the statement matched nothing.
func (r *Repository) mutate(ctx context.Context, sql string, args []any) (feature.SliceRow, error) {
	var row feature.SliceRow
	err := store.InTx(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return err
			}
			return ErrNotFound
		}
		cols, vals, err := store.ScanRow(rows)
		if err != nil {
			return err
		}
		row = feature.SliceRow{Cols: cols, Vals: vals}
		rows.Close()
		return rows.Err()
	})
	return row, err
}

// presentColumns splits the non-null properties into a sorted column list
// and matching argument values.
func presentColumns(props map[string]any) ([]string, []any) {
	present := make(map[string]any, len(props))
	for k, v := range props {
		if v != nil {
			present[k] = v
		}
	}
	cols := sortedKeys(present)
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		args = append(args, present[c])
	}
	return cols, args
}

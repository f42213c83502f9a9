// Package spatialquery runs the predicate queries (intersects, within,
// bbox, distance, buffer) against any validated spatial table.
//
// Within uses true containment (ST_Within) for every geometry kind; a bare
// point therefore only matches on exact point equality. Distance and
// buffer measure meters on the geography type.
package spatialquery

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/paulmach/orb/geojson"

	"github.com/orata/spatial-gateway/internal/feature"
	"github.com/orata/spatial-gateway/internal/geometry"
	"github.com/orata/spatial-gateway/internal/store"
	"github.com/orata/spatial-gateway/internal/table"
)

type InvalidBBoxError struct {
	Reason string
}

func (e *InvalidBBoxError) Error() string { return "invalid bbox: " + e.Reason }

// MetaSource resolves the registered geometry column and SRID of a table.
type MetaSource interface {
	GeometryColumn(ctx context.Context, tbl string) (table.GeometryMeta, error)
}

// Recorder counts rows dropped during result normalization.
type Recorder interface {
	RowsSkipped(tbl string, n int)
}

type Engine struct {
	db     store.DB
	meta   MetaSource
	logger *slog.Logger
	rec    Recorder
}

func New(db store.DB, meta MetaSource, logger *slog.Logger, rec Recorder) *Engine {
	return &Engine{db: db, meta: meta, logger: logger, rec: rec}
}

// Intersects returns features whose geometry spatially intersects g.
func (e *Engine) Intersects(ctx context.Context, tbl string, g *geojson.Geometry) ([]feature.Feature, error) {
	return e.geometryPredicate(ctx, tbl, g, intersectsSQL, nil)
}

// Within returns features whose geometry is contained by g.
func (e *Engine) Within(ctx context.Context, tbl string, g *geojson.Geometry) ([]feature.Feature, error) {
	return e.geometryPredicate(ctx, tbl, g, withinSQL, nil)
}

// Distance returns features within meters geodesic distance of g.
func (e *Engine) Distance(ctx context.Context, tbl string, g *geojson.Geometry, meters float64) ([]feature.Feature, error) {
	return e.geometryPredicate(ctx, tbl, g, distanceSQL, []any{meters})
}

// Buffer returns features intersecting g expanded outward by meters.
func (e *Engine) Buffer(ctx context.Context, tbl string, g *geojson.Geometry, meters float64) ([]feature.Feature, error) {
	return e.geometryPredicate(ctx, tbl, g, bufferSQL, []any{meters})
}

// BBox returns features whose geometry's bounding box overlaps the
// [minx, miny, maxx, maxy] envelope. Index-accelerated overlap, not an
// exact predicate.
func (e *Engine) BBox(ctx context.Context, tbl string, bounds []float64) ([]feature.Feature, error) {
	if len(bounds) != 4 {
		return nil, &InvalidBBoxError{Reason: "bbox must be four numbers [minx, miny, maxx, maxy]"}
	}
	for _, b := range bounds {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return nil, &InvalidBBoxError{Reason: "bbox bounds must be finite numbers"}
		}
	}
	meta, err := e.meta.GeometryColumn(ctx, tbl)
	if err != nil {
		return nil, err
	}
	sql, err := bboxSQL(tbl, meta.Column)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, tbl, meta, sql, []any{bounds[0], bounds[1], bounds[2], bounds[3], meta.SRID})
}

func (e *Engine) geometryPredicate(
	ctx context.Context,
	tbl string,
	g *geojson.Geometry,
	build func(tbl, geomCol string) (string, error),
	extra []any,
) ([]feature.Feature, error) {
	meta, err := e.meta.GeometryColumn(ctx, tbl)
	if err != nil {
		return nil, err
	}
	// The query geometry is assigned the table's reference system.
	encoded, err := geometry.ToStorage(g, meta.SRID)
	if err != nil {
		return nil, err
	}
	sql, err := build(tbl, meta.Column)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, tbl, meta, sql, append([]any{encoded}, extra...))
}

// run executes the query and normalizes each row. A row the normalizer
// rejects is dropped and counted; it never fails the whole query.
func (e *Engine) run(ctx context.Context, tbl string, meta table.GeometryMeta, sql string, args []any) ([]feature.Feature, error) {
	rows, err := e.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", tbl, err)
	}
	defer rows.Close()

	norm := feature.Normalizer{GeometryColumn: meta.Column}
	features := []feature.Feature{}
	skipped := 0
	for rows.Next() {
		cols, vals, err := store.ScanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", tbl, err)
		}
		f, err := norm.Normalize(feature.SliceRow{Cols: cols, Vals: vals})
		if err != nil {
			skipped++
			continue
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", tbl, err)
	}
	if skipped > 0 {
		e.logger.Warn("skipped unreadable rows", "table", tbl, "count", skipped)
		if e.rec != nil {
			e.rec.RowsSkipped(tbl, skipped)
		}
	}
	return features, nil
}

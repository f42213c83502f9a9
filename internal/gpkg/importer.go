package gpkg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb/encoding/ewkb"

	"github.com/orata/spatial-gateway/internal/ident"
	"github.com/orata/spatial-gateway/internal/store"
	"github.com/orata/spatial-gateway/internal/table"
)

// ErrEmptyLayer is returned when the first layer holds no features; an
// import never replaces an existing table with an empty one.
var ErrEmptyLayer = errors.New("geopackage layer is empty")

// FileError marks problems with the uploaded file itself, a client fault.
type FileError struct {
	Err error
}

func (e *FileError) Error() string { return "unreadable geopackage: " + e.Err.Error() }

func (e *FileError) Unwrap() error { return e.Err }

// WriteError marks a store-side failure while materializing the table.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return "import write failed: " + e.Err.Error() }

func (e *WriteError) Unwrap() error { return e.Err }

type Importer struct {
	db     store.DB
	logger *slog.Logger
}

func NewImporter(db store.DB, logger *slog.Logger) *Importer {
	return &Importer{db: db, logger: logger}
}

// ImportFile loads the first feature layer of the GeoPackage at path into
// a table named tableName, dropping and recreating any existing table of
// that name. All rows go in a single transaction; the feature count is
// returned.
func (imp *Importer) ImportFile(ctx context.Context, path, tableName string) (int, error) {
	tableName, err := ident.Validate(tableName)
	if err != nil {
		return 0, err
	}

	reader, err := Open(path)
	if err != nil {
		return 0, &FileError{Err: err}
	}
	defer reader.Close()

	layer, err := reader.FirstLayer()
	if err != nil {
		return 0, &FileError{Err: err}
	}
	cols, err := reader.Columns(layer)
	if err != nil {
		return 0, &FileError{Err: err}
	}

	var features []Feature
	err = reader.Features(layer, func(f Feature) error {
		features = append(features, f)
		return nil
	})
	if err != nil {
		return 0, &FileError{Err: err}
	}
	if len(features) == 0 {
		return 0, ErrEmptyLayer
	}

	srid := layer.SRID
	if srid <= 0 {
		srid = table.DefaultSRID
	}

	propCols, createSQL, err := buildTarget(tableName, layer, cols, srid)
	if err != nil {
		return 0, err
	}
	insertSQL := buildInsert(tableName, propCols)

	err = store.InTx(ctx, imp.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", tableName)); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, createSQL); err != nil {
			return err
		}
		for _, f := range features {
			encoded, err := ewkb.Marshal(f.Geometry, srid)
			if err != nil {
				return err
			}
			args := make([]any, 0, len(propCols)+1)
			for _, c := range propCols {
				args = append(args, f.Values[c])
			}
			args = append(args, encoded)
			if _, err := tx.Exec(ctx, insertSQL, args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, &WriteError{Err: err}
	}

	imp.logger.Info("geopackage imported",
		"table", tableName, "source_layer", layer.Table, "features", len(features), "srid", srid)
	return len(features), nil
}

// buildTarget renders the replacement table's CREATE TABLE statement. The
// layer's own primary key and geometry column are dropped: ids are
// reassigned by the store, the geometry column is recreated typed.
func buildTarget(tableName string, layer Layer, cols []Column, srid int) ([]string, string, error) {
	gtype := layer.GeometryType
	if !knownGeometryType(gtype) {
		gtype = "GEOMETRY"
	}

	var propCols []string
	defs := []string{"id SERIAL PRIMARY KEY"}
	for _, c := range cols {
		if c.PrimaryKey || c.Name == layer.GeometryColumn {
			continue
		}
		name, err := ident.Validate(c.Name)
		if err != nil {
			return nil, "", &FileError{Err: err}
		}
		propCols = append(propCols, name)
		defs = append(defs, fmt.Sprintf("%s %s NULL", name, pgType(c.Type)))
	}
	defs = append(defs, fmt.Sprintf("geometry geometry(%s, %d) NOT NULL", gtype, srid))

	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", tableName, strings.Join(defs, ", "))
	return propCols, createSQL, nil
}

func buildInsert(tableName string, propCols []string) string {
	cols := make([]string, 0, len(propCols)+1)
	vals := make([]string, 0, len(propCols)+1)
	for i, c := range propCols {
		cols = append(cols, c)
		vals = append(vals, fmt.Sprintf("$%d", i+1))
	}
	cols = append(cols, "geometry")
	vals = append(vals, fmt.Sprintf("ST_GeomFromEWKB($%d)", len(propCols)+1))
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableName, strings.Join(cols, ", "), strings.Join(vals, ", "))
}

func knownGeometryType(t string) bool {
	switch t {
	case "POINT", "LINESTRING", "POLYGON", "MULTIPOINT", "MULTILINESTRING", "MULTIPOLYGON", "GEOMETRY":
		return true
	}
	return false
}

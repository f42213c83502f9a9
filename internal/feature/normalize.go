package feature

import (
	"fmt"

	"github.com/orata/spatial-gateway/internal/geometry"
)

// MissingColumnError reports a row missing one of the mandatory columns.
// The store handed back a row this gateway cannot interpret, so it is an
// integrity fault, not a client error.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("row is missing mandatory column %q", e.Column)
}

// Normalizer converts rows into canonical Features. GeometryColumn is the
// column registered as the geometry column in the table's stored schema
// metadata; it is never guessed from column names or value types.
type Normalizer struct {
	GeometryColumn string
	RequireName    bool
}

// Normalize extracts id and geometry (both mandatory) and every other
// present non-null column into properties. Unexpected extra columns are
// kept, never rejected.
func (n Normalizer) Normalize(row Row) (Feature, error) {
	geomCol := n.GeometryColumn
	if geomCol == "" {
		geomCol = "geometry"
	}

	idVal, ok := row.Get("id")
	if !ok || idVal == nil {
		return Feature{}, &MissingColumnError{Column: "id"}
	}
	id, err := asInt64(idVal)
	if err != nil {
		return Feature{}, fmt.Errorf("column id: %w", err)
	}

	geomVal, ok := row.Get(geomCol)
	if !ok || geomVal == nil {
		return Feature{}, &MissingColumnError{Column: "geometry"}
	}
	geom, err := geometry.ToGeoJSON(geomVal)
	if err != nil {
		return Feature{}, fmt.Errorf("column %s: %w", geomCol, err)
	}

	props := make(map[string]any)
	for _, col := range row.Columns() {
		if col == "id" || col == geomCol {
			continue
		}
		v, ok := row.Get(col)
		if !ok || v == nil {
			continue
		}
		props[col] = v
	}

	if n.RequireName {
		if _, ok := props["name"]; !ok {
			return Feature{}, &MissingColumnError{Column: "name"}
		}
	}

	return Feature{ID: id, Geometry: geom, Properties: props}, nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected id type %T", v)
	}
}

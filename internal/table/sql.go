package table

import (
	"fmt"
	"strings"

	"github.com/orata/spatial-gateway/internal/ident"
)

const (
	listTablesSQL = `SELECT DISTINCT table_name FROM information_schema.columns
		WHERE udt_name = 'geometry' AND table_schema = 'public'
		ORDER BY table_name`

	describeSQL = `SELECT column_name, data_type, udt_name, is_nullable
		FROM information_schema.columns
		WHERE table_name = $1 AND table_schema = 'public'
		ORDER BY ordinal_position`

	geometryColumnSQL = `SELECT f_geometry_column, srid, type FROM geometry_columns
		WHERE f_table_schema = 'public' AND f_table_name = $1`
)

var geometryTypes = map[string]bool{
	"POINT":           true,
	"LINESTRING":      true,
	"POLYGON":         true,
	"MULTIPOINT":      true,
	"MULTILINESTRING": true,
	"MULTIPOLYGON":    true,
}

// createTableSQL renders the CREATE TABLE statement: id as auto-increment
// primary key, caller columns in caller order, the typed geometry column
// last. Identifiers are validated here; column type strings are passed
// through as-is and left for the store to reject.
func createTableSQL(spec Spec) (string, error) {
	name, err := ident.Validate(spec.Name)
	if err != nil {
		return "", err
	}
	gtype := strings.ToUpper(spec.GeometryType)
	if !geometryTypes[gtype] {
		return "", fmt.Errorf("unsupported geometry type %q", spec.GeometryType)
	}
	srid := spec.SRID
	if srid == 0 {
		srid = DefaultSRID
	}

	cols := make([]string, 0, len(spec.Columns)+2)
	cols = append(cols, "id SERIAL PRIMARY KEY")
	for _, c := range spec.Columns {
		colName, err := ident.Validate(c.Name)
		if err != nil {
			return "", err
		}
		null := "NOT NULL"
		if c.Nullable {
			null = "NULL"
		}
		cols = append(cols, fmt.Sprintf("%s %s %s", colName, c.SQLType, null))
	}
	cols = append(cols, fmt.Sprintf("geometry geometry(%s, %d) NOT NULL", gtype, srid))

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, strings.Join(cols, ", ")), nil
}

func dropTableSQL(name string) (string, error) {
	name, err := ident.Validate(name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", name), nil
}

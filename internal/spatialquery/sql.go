package spatialquery

import (
	"fmt"

	"github.com/orata/spatial-gateway/internal/ident"
)

// Geometry, envelope bounds and distances are always bound parameters;
// only the validated table and geometry column names are interpolated.

func intersectsSQL(tbl, geomCol string) (string, error) {
	return predicateSQL(tbl, geomCol, "ST_Intersects(%s, ST_GeomFromEWKB($1))")
}

func withinSQL(tbl, geomCol string) (string, error) {
	return predicateSQL(tbl, geomCol, "ST_Within(%s, ST_GeomFromEWKB($1))")
}

func bboxSQL(tbl, geomCol string) (string, error) {
	return predicateSQL(tbl, geomCol, "%s && ST_MakeEnvelope($1, $2, $3, $4, $5)")
}

func distanceSQL(tbl, geomCol string) (string, error) {
	return predicateSQL(tbl, geomCol, "ST_DWithin(%s::geography, ST_GeomFromEWKB($1)::geography, $2)")
}

func bufferSQL(tbl, geomCol string) (string, error) {
	return predicateSQL(tbl, geomCol, "ST_Intersects(%s, ST_Buffer(ST_GeomFromEWKB($1)::geography, $2)::geometry)")
}

func predicateSQL(tbl, geomCol, condition string) (string, error) {
	tbl, err := ident.Validate(tbl)
	if err != nil {
		return "", err
	}
	geomCol, err = ident.Validate(geomCol)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT * FROM %s WHERE %s", tbl, fmt.Sprintf(condition, geomCol)), nil
}

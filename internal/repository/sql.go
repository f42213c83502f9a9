package repository

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orata/spatial-gateway/internal/ident"
)

// Geometry parameters are bound as EWKB bytes and decoded store-side;
// predicate and value text never carries literals. Only identifiers, which
// cannot be bound, are interpolated, and only after validation.

func insertSQL(tbl, geomCol string, propCols []string) (string, error) {
	tbl, geomCol, propCols, err := validateParts(tbl, geomCol, propCols)
	if err != nil {
		return "", err
	}
	cols := make([]string, 0, len(propCols)+1)
	vals := make([]string, 0, len(propCols)+1)
	for i, c := range propCols {
		cols = append(cols, c)
		vals = append(vals, fmt.Sprintf("$%d", i+1))
	}
	cols = append(cols, geomCol)
	vals = append(vals, fmt.Sprintf("ST_GeomFromEWKB($%d)", len(propCols)+1))

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		tbl, strings.Join(cols, ", "), strings.Join(vals, ", ")), nil
}

func updateSQL(tbl, geomCol string, propCols []string, withGeometry bool) (string, error) {
	tbl, geomCol, propCols, err := validateParts(tbl, geomCol, propCols)
	if err != nil {
		return "", err
	}
	var sets []string
	n := 0
	for _, c := range propCols {
		n++
		sets = append(sets, fmt.Sprintf("%s = $%d", c, n))
	}
	if withGeometry {
		n++
		sets = append(sets, fmt.Sprintf("%s = ST_GeomFromEWKB($%d)", geomCol, n))
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING *",
		tbl, strings.Join(sets, ", "), n+1), nil
}

func selectSQL(tbl string) (string, error) {
	tbl, err := ident.Validate(tbl)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT * FROM %s WHERE id = $1", tbl), nil
}

func listSQL(tbl string) (string, error) {
	tbl, err := ident.Validate(tbl)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT * FROM %s OFFSET $1 LIMIT $2", tbl), nil
}

func deleteSQL(tbl string) (string, error) {
	tbl, err := ident.Validate(tbl)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DELETE FROM %s WHERE id = $1 RETURNING *", tbl), nil
}

func validateParts(tbl, geomCol string, propCols []string) (string, string, []string, error) {
	tbl, err := ident.Validate(tbl)
	if err != nil {
		return "", "", nil, err
	}
	geomCol, err = ident.Validate(geomCol)
	if err != nil {
		return "", "", nil, err
	}
	for _, c := range propCols {
		if _, err := ident.Validate(c); err != nil {
			return "", "", nil, err
		}
	}
	return tbl, geomCol, propCols, nil
}

// sortedKeys gives property columns a stable order so generated SQL is
// deterministic for a given payload.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

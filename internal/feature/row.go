package feature

import (
	"reflect"
	"strings"
)

// Row is the capability a result row must offer for normalization: lookup
// by column name and enumeration of the columns that are present. The
// concrete source (driver row, map, struct) is adapted once, before
// normalization, never branched on inline.
type Row interface {
	Get(column string) (any, bool)
	Columns() []string
}

// MapRow adapts a column-name keyed map, the shape generic driver scans
// produce.
type MapRow map[string]any

func (r MapRow) Get(column string) (any, bool) {
	v, ok := r[column]
	return v, ok
}

func (r MapRow) Columns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	return cols
}

// SliceRow adapts parallel column/value slices, the shape positional scans
// produce. Extra values beyond the column list are ignored.
type SliceRow struct {
	Cols []string
	Vals []any
}

func (r SliceRow) Get(column string) (any, bool) {
	for i, c := range r.Cols {
		if c == column && i < len(r.Vals) {
			return r.Vals[i], true
		}
	}
	return nil, false
}

func (r SliceRow) Columns() []string { return r.Cols }

// StructRow adapts a struct by exported fields. The column name is the
// `db` tag when present, otherwise the lower-cased field name. Nil pointer
// fields read as null.
type StructRow struct {
	v reflect.Value
}

func NewStructRow(s any) StructRow {
	v := reflect.ValueOf(s)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	return StructRow{v: v}
}

func (r StructRow) Get(column string) (any, bool) {
	if r.v.Kind() != reflect.Struct {
		return nil, false
	}
	t := r.v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || structColumn(f) != column {
			continue
		}
		fv := r.v.Field(i)
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				return nil, true
			}
			fv = fv.Elem()
		}
		return fv.Interface(), true
	}
	return nil, false
}

func (r StructRow) Columns() []string {
	if r.v.Kind() != reflect.Struct {
		return nil
	}
	t := r.v.Type()
	cols := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if f := t.Field(i); f.IsExported() {
			cols = append(cols, structColumn(f))
		}
	}
	return cols
}

func structColumn(f reflect.StructField) string {
	if tag := f.Tag.Get("db"); tag != "" {
		return tag
	}
	return strings.ToLower(f.Name)
}

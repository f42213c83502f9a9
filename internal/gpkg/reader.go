// Package gpkg loads uploaded GeoPackage files and materializes them as
// spatial tables, replacing any previous table of the same name.
package gpkg

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/orata/spatial-gateway/internal/ident"
)

// Layer describes one feature table inside a GeoPackage.
type Layer struct {
	Table          string
	GeometryColumn string
	GeometryType   string
	SRID           int
}

type Column struct {
	Name       string
	Type       string
	NotNull    bool
	PrimaryKey bool
}

// Feature is one row of a layer with its geometry decoded.
type Feature struct {
	Geometry orb.Geometry
	Values   map[string]any
}

type Reader struct {
	db *sql.DB
}

func Open(path string) (*Reader, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open geopackage: %w", err)
	}
	// sql.Open is lazy; touch the file so a non-gpkg upload fails here.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open geopackage: %w", err)
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

const firstLayerSQL = `SELECT c.table_name, g.column_name, g.geometry_type_name, g.srs_id
	FROM gpkg_contents c
	JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
	WHERE c.data_type = 'features'
	ORDER BY c.table_name LIMIT 1`

// FirstLayer returns the first feature layer registered in the package.
func (r *Reader) FirstLayer() (Layer, error) {
	var l Layer
	err := r.db.QueryRow(firstLayerSQL).Scan(&l.Table, &l.GeometryColumn, &l.GeometryType, &l.SRID)
	if err == sql.ErrNoRows {
		return Layer{}, fmt.Errorf("geopackage has no feature layer")
	}
	if err != nil {
		return Layer{}, fmt.Errorf("read gpkg_contents: %w", err)
	}
	l.GeometryType = strings.ToUpper(l.GeometryType)
	return l, nil
}

// Columns lists the layer's columns in declared order.
func (r *Reader) Columns(layer Layer) ([]Column, error) {
	tbl, err := ident.Validate(layer.Table)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tbl))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", tbl, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid     int
			c       Column
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &c.Name, &c.Type, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("table_info %s: %w", tbl, err)
		}
		c.NotNull = notnull != 0
		c.PrimaryKey = pk != 0
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// Features streams the layer's rows with geometry blobs decoded. The
// layer's primary key and geometry column are not part of Values.
func (r *Reader) Features(layer Layer, fn func(Feature) error) error {
	tbl, err := ident.Validate(layer.Table)
	if err != nil {
		return err
	}
	rows, err := r.db.Query(fmt.Sprintf("SELECT * FROM %s", tbl))
	if err != nil {
		return fmt.Errorf("read %s: %w", tbl, err)
	}
	defer rows.Close()

	colNames, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("read %s: %w", tbl, err)
	}
	for rows.Next() {
		vals := make([]any, len(colNames))
		ptrs := make([]any, len(colNames))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("read %s: %w", tbl, err)
		}

		f := Feature{Values: make(map[string]any, len(colNames))}
		for i, name := range colNames {
			if name == layer.GeometryColumn {
				blob, ok := vals[i].([]byte)
				if !ok {
					return fmt.Errorf("read %s: geometry column %q is not a blob", tbl, name)
				}
				g, _, err := DecodeGeometry(blob)
				if err != nil {
					return fmt.Errorf("read %s: %w", tbl, err)
				}
				f.Geometry = g
				continue
			}
			switch v := vals[i].(type) {
			case []byte:
				f.Values[name] = string(v)
			default:
				f.Values[name] = v
			}
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return rows.Err()
}

// DecodeGeometry parses a GeoPackage geometry blob: the "GP" header
// (version, flags, srs id, optional envelope) followed by plain WKB.
func DecodeGeometry(blob []byte) (orb.Geometry, int, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, 0, fmt.Errorf("not a geopackage geometry blob")
	}
	flags := blob[3]
	if flags&0x20 != 0 {
		return nil, 0, fmt.Errorf("extended geopackage geometry not supported")
	}

	order := binary.ByteOrder(binary.BigEndian)
	if flags&0x01 != 0 {
		order = binary.LittleEndian
	}
	srid := int(int32(order.Uint32(blob[4:8])))

	envelopeSize := 0
	switch (flags >> 1) & 0x07 {
	case 0:
		envelopeSize = 0
	case 1:
		envelopeSize = 32
	case 2, 3:
		envelopeSize = 48
	case 4:
		envelopeSize = 64
	default:
		return nil, 0, fmt.Errorf("invalid envelope indicator")
	}
	offset := 8 + envelopeSize
	if len(blob) < offset {
		return nil, 0, fmt.Errorf("truncated geometry blob")
	}
	if flags&0x10 != 0 {
		// empty geometry flag
		return nil, srid, fmt.Errorf("empty geometry")
	}

	g, err := wkb.Unmarshal(blob[offset:])
	if err != nil {
		return nil, 0, fmt.Errorf("decode wkb: %w", err)
	}
	return g, srid, nil
}

// TableName derives the target table name from an uploaded file name.
func TableName(filename string) (string, error) {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return ident.Validate(strings.ToLower(stem))
}

// pgType maps a GeoPackage (SQLite) column type to the store's type.
func pgType(sqliteType string) string {
	t := strings.ToUpper(strings.TrimSpace(sqliteType))
	switch {
	case strings.HasPrefix(t, "INT"), t == "MEDIUMINT", t == "SMALLINT", t == "TINYINT":
		return "BIGINT"
	case t == "REAL", t == "DOUBLE", t == "FLOAT":
		return "DOUBLE PRECISION"
	case t == "BOOLEAN":
		return "BOOLEAN"
	case t == "DATE":
		return "DATE"
	case t == "DATETIME", t == "TIMESTAMP":
		return "TIMESTAMPTZ"
	case t == "BLOB":
		return "BYTEA"
	case strings.HasPrefix(t, "TEXT"), strings.HasPrefix(t, "VARCHAR"), strings.HasPrefix(t, "CHAR"):
		return "TEXT"
	default:
		return "TEXT"
	}
}

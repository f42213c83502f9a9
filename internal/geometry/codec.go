// Package geometry converts between GeoJSON geometries and the EWKB
// encoding the store speaks.
//
// ToStorage checks structural well-formedness before encoding. ToGeoJSON
// accepts whatever shape the driver hands back for a geometry column: raw
// WKB/EWKB bytes, a hex string, an already decoded orb geometry, or a
// GeoJSON geometry passed through unchanged.
package geometry

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
)

type InvalidGeometryError struct {
	Reason string
}

func (e *InvalidGeometryError) Error() string {
	return "invalid geometry: " + e.Reason
}

type UnsupportedEncodingError struct {
	Value any
}

func (e *UnsupportedEncodingError) Error() string {
	return fmt.Sprintf("unsupported geometry encoding %T", e.Value)
}

// ToStorage validates g and encodes it as EWKB carrying the given SRID.
func ToStorage(g *geojson.Geometry, srid int) ([]byte, error) {
	if g == nil {
		return nil, &InvalidGeometryError{Reason: "geometry is required"}
	}
	if err := Check(g.Geometry()); err != nil {
		return nil, err
	}
	data, err := ewkb.Marshal(g.Geometry(), srid)
	if err != nil {
		return nil, &InvalidGeometryError{Reason: err.Error()}
	}
	return data, nil
}

// ToGeoJSON decodes a geometry value of any supported wire shape.
func ToGeoJSON(value any) (*geojson.Geometry, error) {
	switch v := value.(type) {
	case *geojson.Geometry:
		return v, nil
	case geojson.Geometry:
		return &v, nil
	case orb.Geometry:
		return geojson.NewGeometry(v), nil
	case []byte:
		return fromBinary(v)
	case string:
		raw, err := hex.DecodeString(v)
		if err != nil {
			return nil, &UnsupportedEncodingError{Value: value}
		}
		return fromBinary(raw)
	default:
		return nil, &UnsupportedEncodingError{Value: value}
	}
}

func fromBinary(data []byte) (*geojson.Geometry, error) {
	if g, _, err := ewkb.Unmarshal(data); err == nil {
		return geojson.NewGeometry(g), nil
	}
	g, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, &UnsupportedEncodingError{Value: data}
	}
	return geojson.NewGeometry(g), nil
}

// Check enforces the structural rules the store will not re-check per row:
// ring closure and arity, line lengths, non-empty multi geometries.
func Check(g orb.Geometry) error {
	switch v := g.(type) {
	case orb.Point:
		return nil
	case orb.LineString:
		return checkLine(v)
	case orb.Polygon:
		return checkPolygon(v)
	case orb.MultiPoint:
		if len(v) < 1 {
			return &InvalidGeometryError{Reason: "MultiPoint must have at least 1 point"}
		}
		return nil
	case orb.MultiLineString:
		if len(v) < 1 {
			return &InvalidGeometryError{Reason: "MultiLineString must have at least 1 LineString"}
		}
		for _, line := range v {
			if err := checkLine(line); err != nil {
				return err
			}
		}
		return nil
	case orb.MultiPolygon:
		if len(v) < 1 {
			return &InvalidGeometryError{Reason: "MultiPolygon must have at least 1 Polygon"}
		}
		for _, poly := range v {
			if err := checkPolygon(poly); err != nil {
				return err
			}
		}
		return nil
	default:
		return &InvalidGeometryError{Reason: fmt.Sprintf("unsupported geometry type %q", g.GeoJSONType())}
	}
}

func checkLine(line orb.LineString) error {
	if len(line) < 2 {
		return &InvalidGeometryError{Reason: "LineString must have at least 2 points"}
	}
	return nil
}

func checkPolygon(poly orb.Polygon) error {
	if len(poly) < 1 {
		return &InvalidGeometryError{Reason: "Polygon must have at least 1 ring"}
	}
	for _, ring := range poly {
		if len(ring) < 4 {
			return &InvalidGeometryError{Reason: "Polygon ring must have at least 4 points"}
		}
		if !ring.Closed() {
			return &InvalidGeometryError{Reason: "Polygon ring must be closed"}
		}
	}
	return nil
}

// Unwrap parses a request body that is either a bare GeoJSON geometry or a
// {"geometry": <geojson>} wrapper; both forms are equivalent inputs.
func Unwrap(body []byte) (*geojson.Geometry, error) {
	var wrapper struct {
		Geometry json.RawMessage `json:"geometry"`
	}
	raw := body
	if err := json.Unmarshal(body, &wrapper); err == nil && len(wrapper.Geometry) > 0 {
		raw = wrapper.Geometry
	}
	g := &geojson.Geometry{}
	if err := json.Unmarshal(raw, g); err != nil {
		return nil, &InvalidGeometryError{Reason: err.Error()}
	}
	if g.Type == "" {
		return nil, &InvalidGeometryError{Reason: "missing geometry type"}
	}
	return g, nil
}

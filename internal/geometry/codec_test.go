package geometry

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func TestRoundTrip_AllGeometryKinds(t *testing.T) {
	geoms := map[string]orb.Geometry{
		"Point":      orb.Point{100, 0},
		"LineString": orb.LineString{{100, 0}, {101, 1}},
		"Polygon": orb.Polygon{
			{{100, 0}, {101, 0}, {101, 1}, {100, 0}},
		},
		"MultiPoint": orb.MultiPoint{{100, 0}, {101, 1}},
		"MultiLineString": orb.MultiLineString{
			{{100, 0}, {101, 1}},
			{{102, 2}, {103, 3}},
		},
		"MultiPolygon": orb.MultiPolygon{
			{{{100, 0}, {101, 0}, {101, 1}, {100, 0}}},
		},
	}

	for kind, g := range geoms {
		encoded, err := ToStorage(geojson.NewGeometry(g), 4326)
		if err != nil {
			t.Fatalf("%s: ToStorage failed: %v", kind, err)
		}
		decoded, err := ToGeoJSON(encoded)
		if err != nil {
			t.Fatalf("%s: ToGeoJSON failed: %v", kind, err)
		}
		if decoded.Type != kind {
			t.Fatalf("%s: round-trip type = %q", kind, decoded.Type)
		}
		if !orb.Equal(decoded.Geometry(), g) {
			t.Fatalf("%s: round-trip geometry differs: %v != %v", kind, decoded.Geometry(), g)
		}
	}
}

func TestToGeoJSON_AcceptsHexString(t *testing.T) {
	encoded, err := ToStorage(geojson.NewGeometry(orb.Point{12.5, -3.25}), 4326)
	if err != nil {
		t.Fatalf("ToStorage failed: %v", err)
	}
	decoded, err := ToGeoJSON(hex.EncodeToString(encoded))
	if err != nil {
		t.Fatalf("ToGeoJSON(hex) failed: %v", err)
	}
	if !orb.Equal(decoded.Geometry(), orb.Point{12.5, -3.25}) {
		t.Fatalf("hex decode produced %v", decoded.Geometry())
	}
}

func TestToGeoJSON_PassesThroughDecodedValues(t *testing.T) {
	g := geojson.NewGeometry(orb.Point{1, 2})
	got, err := ToGeoJSON(g)
	if err != nil {
		t.Fatalf("passthrough failed: %v", err)
	}
	if got != g {
		t.Fatalf("passthrough must return the same geometry object")
	}

	fromOrb, err := ToGeoJSON(orb.Point{1, 2})
	if err != nil {
		t.Fatalf("orb geometry failed: %v", err)
	}
	if !orb.Equal(fromOrb.Geometry(), orb.Point{1, 2}) {
		t.Fatalf("orb geometry decode produced %v", fromOrb.Geometry())
	}
}

func TestToGeoJSON_RejectsUnknownEncodings(t *testing.T) {
	for _, value := range []any{42, 3.14, true, []int{1}, "not-hex-zz", "abc"} {
		_, err := ToGeoJSON(value)
		var unsupported *UnsupportedEncodingError
		if !errors.As(err, &unsupported) {
			t.Fatalf("ToGeoJSON(%v) err = %v, want UnsupportedEncodingError", value, err)
		}
	}
}

func TestCheck_RejectsUnclosedPolygonRing(t *testing.T) {
	open := orb.Polygon{{{100, 0}, {101, 0}, {101, 1}, {100, 1}}}
	_, err := ToStorage(geojson.NewGeometry(open), 4326)
	var invalid *InvalidGeometryError
	if !errors.As(err, &invalid) {
		t.Fatalf("unclosed ring accepted, err = %v", err)
	}
}

func TestCheck_RejectsDegenerateShapes(t *testing.T) {
	cases := map[string]orb.Geometry{
		"short line":       orb.LineString{{1, 1}},
		"short ring":       orb.Polygon{{{0, 0}, {1, 0}, {0, 0}}},
		"empty multipoint": orb.MultiPoint{},
		"empty multiline":  orb.MultiLineString{},
		"short multi line": orb.MultiLineString{{{1, 1}}},
		"empty multipoly":  orb.MultiPolygon{},
		"open multi ring":  orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {2, 2}}}},
	}
	for name, g := range cases {
		if err := Check(g); err == nil {
			t.Fatalf("%s: Check accepted a malformed geometry", name)
		}
	}
}

func TestUnwrap_BareAndWrappedAreEquivalent(t *testing.T) {
	bare := []byte(`{"type":"Point","coordinates":[100,0]}`)
	wrapped := []byte(`{"geometry":{"type":"Point","coordinates":[100,0]}}`)

	g1, err := Unwrap(bare)
	if err != nil {
		t.Fatalf("bare form rejected: %v", err)
	}
	g2, err := Unwrap(wrapped)
	if err != nil {
		t.Fatalf("wrapped form rejected: %v", err)
	}
	if !orb.Equal(g1.Geometry(), g2.Geometry()) {
		t.Fatalf("forms decoded differently: %v vs %v", g1.Geometry(), g2.Geometry())
	}
}

func TestUnwrap_RejectsGarbage(t *testing.T) {
	for _, body := range []string{`{}`, `null`, `"point"`, `{"type":"Point"`} {
		if _, err := Unwrap([]byte(body)); err == nil {
			t.Fatalf("Unwrap(%s) accepted malformed input", body)
		}
	}
}

func TestGeoJSONOutput_CoordinatesArePlainArrays(t *testing.T) {
	decoded, err := ToGeoJSON(mustEncode(t, orb.LineString{{100, 0}, {101, 1}}))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	out, err := json.Marshal(decoded)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(out, &generic); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	coords, ok := generic["coordinates"].([]any)
	if !ok || !reflect.DeepEqual(coords[0], []any{100.0, 0.0}) {
		t.Fatalf("coordinates not nested plain arrays: %v", generic["coordinates"])
	}
}

func mustEncode(t *testing.T, g orb.Geometry) []byte {
	t.Helper()
	data, err := ToStorage(geojson.NewGeometry(g), 4326)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	return data
}

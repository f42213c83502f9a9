// Package feature defines the canonical feature record and the row
// normalization that produces it from heterogeneous query results.
package feature

import (
	"encoding/json"

	"github.com/paulmach/orb/geojson"
)

// Feature is the canonical output unit: a store-assigned id, a decoded
// GeoJSON geometry, and the remaining non-null columns as properties.
type Feature struct {
	ID         int64
	Geometry   *geojson.Geometry
	Properties map[string]any
}

// MarshalJSON flattens properties next to id and geometry, matching the
// wire shape of the HTTP surface: {"id":1,"name":"A","geometry":{...}}.
func (f Feature) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.Properties)+2)
	for k, v := range f.Properties {
		out[k] = v
	}
	out["id"] = f.ID
	out["geometry"] = f.Geometry
	return json.Marshal(out)
}

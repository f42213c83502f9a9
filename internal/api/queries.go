package api

import (
	"encoding/json"
	"io"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"

	"github.com/orata/spatial-gateway/internal/feature"
	"github.com/orata/spatial-gateway/internal/geometry"
)

// queryFeatures dispatches POST /features/{table}/query/{predicate}.
// Geometry predicates accept a bare GeoJSON geometry or a
// {"geometry": ...} wrapper; distance and buffer carry their meters
// alongside, bbox carries a four number envelope.
func (a *API) queryFeatures(w http.ResponseWriter, r *http.Request) {
	tbl := chi.URLParam(r, "table")
	predicate := chi.URLParam(r, "predicate")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable request body"})
		return
	}

	var features []feature.Feature
	switch predicate {
	case "intersects":
		g, gerr := geometry.Unwrap(body)
		if gerr != nil {
			a.writeError(w, r, gerr)
			return
		}
		features, err = a.deps.Queries.Intersects(r.Context(), tbl, g)

	case "within":
		g, gerr := geometry.Unwrap(body)
		if gerr != nil {
			a.writeError(w, r, gerr)
			return
		}
		features, err = a.deps.Queries.Within(r.Context(), tbl, g)

	case "bbox":
		features, err = a.deps.Queries.BBox(r.Context(), tbl, parseBBox(body))

	case "distance":
		g, meters, gerr := parseMeters(body, "distance")
		if gerr != nil {
			a.writeError(w, r, gerr)
			return
		}
		features, err = a.deps.Queries.Distance(r.Context(), tbl, g, meters)

	case "buffer":
		g, meters, gerr := parseMeters(body, "buffer")
		if gerr != nil {
			a.writeError(w, r, gerr)
			return
		}
		features, err = a.deps.Queries.Buffer(r.Context(), tbl, g, meters)

	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown query predicate " + predicate})
		return
	}

	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, features)
}

// parseBBox accepts {"bbox": [...]} or a bare array. Arity and finiteness
// are checked by the engine.
func parseBBox(body []byte) []float64 {
	var wrapper struct {
		BBox []float64 `json:"bbox"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.BBox != nil {
		return wrapper.BBox
	}
	var bare []float64
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare
	}
	return nil
}

// parseMeters reads a {"geometry": ..., "<key>": meters} body.
func parseMeters(body []byte, key string) (*geojson.Geometry, float64, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, 0, &geometry.InvalidGeometryError{Reason: "malformed query body"}
	}
	geomRaw, ok := raw["geometry"]
	if !ok {
		return nil, 0, &geometry.InvalidGeometryError{Reason: "geometry is required"}
	}
	g, err := geometry.Unwrap(geomRaw)
	if err != nil {
		return nil, 0, err
	}

	metersRaw, ok := raw[key]
	if !ok {
		return nil, 0, &geometry.InvalidGeometryError{Reason: key + " is required"}
	}
	var meters float64
	if err := json.Unmarshal(metersRaw, &meters); err != nil {
		return nil, 0, &geometry.InvalidGeometryError{Reason: key + " must be a number"}
	}
	if meters < 0 || math.IsNaN(meters) || math.IsInf(meters, 0) {
		return nil, 0, &geometry.InvalidGeometryError{Reason: key + " must be a non-negative number"}
	}
	return g, meters, nil
}

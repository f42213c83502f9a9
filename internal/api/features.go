package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"

	"github.com/orata/spatial-gateway/internal/geometry"
	"github.com/orata/spatial-gateway/internal/repository"
)

const defaultPageSize = 100

// splitBody separates the geometry key from the remaining top-level keys
// of a feature payload. An "id" key is dropped, ids are store-assigned.
func splitBody(body []byte) (*geojson.Geometry, map[string]any, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, nil, &geometry.InvalidGeometryError{Reason: "malformed feature body"}
	}

	var g *geojson.Geometry
	if geomRaw, ok := raw["geometry"]; ok {
		parsed, err := geometry.Unwrap(geomRaw)
		if err != nil {
			return nil, nil, err
		}
		g = parsed
	}

	props := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "geometry" || k == "id" {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return nil, nil, &geometry.InvalidGeometryError{Reason: "malformed feature body"}
		}
		props[k] = val
	}
	return g, props, nil
}

func (a *API) createFeature(w http.ResponseWriter, r *http.Request) {
	tbl := chi.URLParam(r, "table")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable request body"})
		return
	}
	g, props, err := splitBody(body)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	f, err := a.deps.Features.Create(r.Context(), tbl, repository.Draft{Geometry: g, Properties: props})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (a *API) listFeatures(w http.ResponseWriter, r *http.Request) {
	tbl := chi.URLParam(r, "table")
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", defaultPageSize)

	features, err := a.deps.Features.List(r.Context(), tbl, skip, limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, features)
}

func (a *API) getFeature(w http.ResponseWriter, r *http.Request) {
	tbl, id, ok := a.featurePath(w, r)
	if !ok {
		return
	}
	f, err := a.deps.Features.Get(r.Context(), tbl, id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (a *API) updateFeature(w http.ResponseWriter, r *http.Request) {
	tbl, id, ok := a.featurePath(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable request body"})
		return
	}
	g, props, err := splitBody(body)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	f, err := a.deps.Features.Update(r.Context(), tbl, id, repository.Patch{Geometry: g, Properties: props})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (a *API) deleteFeature(w http.ResponseWriter, r *http.Request) {
	tbl, id, ok := a.featurePath(w, r)
	if !ok {
		return
	}
	f, err := a.deps.Features.Delete(r.Context(), tbl, id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (a *API) featurePath(w http.ResponseWriter, r *http.Request) (string, int64, bool) {
	tbl := chi.URLParam(r, "table")
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "feature id must be an integer"})
		return "", 0, false
	}
	return tbl, id, true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// Package api exposes the gateway's JSON surface: dynamic table
// management, feature CRUD, predicate queries and GeoPackage import.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/paulmach/orb/geojson"

	"github.com/orata/spatial-gateway/internal/feature"
	"github.com/orata/spatial-gateway/internal/repository"
	"github.com/orata/spatial-gateway/internal/table"
)

type TableService interface {
	Create(ctx context.Context, spec table.Spec) error
	List(ctx context.Context) ([]string, error)
	Describe(ctx context.Context, name string) ([]table.ColumnInfo, error)
	Drop(ctx context.Context, name string) error
}

type FeatureService interface {
	Create(ctx context.Context, tbl string, draft repository.Draft) (feature.Feature, error)
	Get(ctx context.Context, tbl string, id int64) (feature.Feature, error)
	List(ctx context.Context, tbl string, offset, limit int) ([]feature.Feature, error)
	Update(ctx context.Context, tbl string, id int64, patch repository.Patch) (feature.Feature, error)
	Delete(ctx context.Context, tbl string, id int64) (feature.Feature, error)
}

type QueryService interface {
	Intersects(ctx context.Context, tbl string, g *geojson.Geometry) ([]feature.Feature, error)
	Within(ctx context.Context, tbl string, g *geojson.Geometry) ([]feature.Feature, error)
	BBox(ctx context.Context, tbl string, bounds []float64) ([]feature.Feature, error)
	Distance(ctx context.Context, tbl string, g *geojson.Geometry, meters float64) ([]feature.Feature, error)
	Buffer(ctx context.Context, tbl string, g *geojson.Geometry, meters float64) ([]feature.Feature, error)
}

type ImportService interface {
	ImportFile(ctx context.Context, path, tableName string) (int, error)
}

// ImportRecorder counts import attempts for the metrics endpoint.
type ImportRecorder interface {
	ObserveImport(outcome string, features int)
}

type Deps struct {
	Tables   TableService
	Features FeatureService
	Queries  QueryService
	Importer ImportService
	Imports  ImportRecorder
	Logger   *slog.Logger

	MaxUploadBytes int64
	UploadDir      string
}

type API struct {
	deps     Deps
	validate *validator.Validate
}

func New(d Deps) *API {
	return &API{deps: d, validate: validator.New()}
}

func (a *API) Routes(r chi.Router) {
	r.Route("/spatial-tables", func(r chi.Router) {
		r.Post("/", a.createTable)
		r.Get("/", a.listTables)
		r.Get("/{name}", a.describeTable)
		r.Delete("/{name}", a.dropTable)
	})
	r.Route("/features/{table}", func(r chi.Router) {
		r.Post("/", a.createFeature)
		r.Get("/", a.listFeatures)
		r.Get("/{id}", a.getFeature)
		r.Put("/{id}", a.updateFeature)
		r.Delete("/{id}", a.deleteFeature)
		r.Post("/query/{predicate}", a.queryFeatures)
	})
	r.Post("/import/geopackage/", a.importGeoPackage)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/orata/spatial-gateway/internal/feature"
	"github.com/orata/spatial-gateway/internal/geometry"
	"github.com/orata/spatial-gateway/internal/repository"
	"github.com/orata/spatial-gateway/internal/spatialquery"
	"github.com/orata/spatial-gateway/internal/table"
)

type fakeTables struct {
	spec      table.Spec
	createErr error
	tables    []string
	cols      []table.ColumnInfo
	descErr   error
	dropped   []string
	dropErr   error
}

func (f *fakeTables) Create(_ context.Context, spec table.Spec) error {
	f.spec = spec
	return f.createErr
}

func (f *fakeTables) List(context.Context) ([]string, error) { return f.tables, nil }

func (f *fakeTables) Describe(_ context.Context, name string) ([]table.ColumnInfo, error) {
	return f.cols, f.descErr
}

func (f *fakeTables) Drop(_ context.Context, name string) error {
	f.dropped = append(f.dropped, name)
	return f.dropErr
}

type fakeFeatures struct {
	feat      feature.Feature
	err       error
	deletions int
	gotDraft  repository.Draft
	gotPatch  repository.Patch
	gotID     int64
}

func (f *fakeFeatures) Create(_ context.Context, _ string, d repository.Draft) (feature.Feature, error) {
	f.gotDraft = d
	return f.feat, f.err
}

func (f *fakeFeatures) Get(_ context.Context, _ string, id int64) (feature.Feature, error) {
	f.gotID = id
	return f.feat, f.err
}

func (f *fakeFeatures) List(context.Context, string, int, int) ([]feature.Feature, error) {
	return []feature.Feature{f.feat}, f.err
}

func (f *fakeFeatures) Update(_ context.Context, _ string, id int64, p repository.Patch) (feature.Feature, error) {
	f.gotID = id
	f.gotPatch = p
	return f.feat, f.err
}

func (f *fakeFeatures) Delete(_ context.Context, _ string, id int64) (feature.Feature, error) {
	f.deletions++
	if f.deletions > 1 {
		return feature.Feature{}, repository.ErrNotFound
	}
	return f.feat, f.err
}

type fakeQueries struct {
	feats     []feature.Feature
	err       error
	gotBounds []float64
	gotMeters float64
	gotOp     string
}

func (f *fakeQueries) Intersects(_ context.Context, _ string, _ *geojson.Geometry) ([]feature.Feature, error) {
	f.gotOp = "intersects"
	return f.feats, f.err
}

func (f *fakeQueries) Within(_ context.Context, _ string, _ *geojson.Geometry) ([]feature.Feature, error) {
	f.gotOp = "within"
	return f.feats, f.err
}

func (f *fakeQueries) BBox(_ context.Context, _ string, bounds []float64) ([]feature.Feature, error) {
	f.gotOp = "bbox"
	f.gotBounds = bounds
	if len(bounds) != 4 {
		return nil, &spatialquery.InvalidBBoxError{Reason: "bbox must be four numbers"}
	}
	return f.feats, f.err
}

func (f *fakeQueries) Distance(_ context.Context, _ string, _ *geojson.Geometry, m float64) ([]feature.Feature, error) {
	f.gotOp = "distance"
	f.gotMeters = m
	return f.feats, f.err
}

func (f *fakeQueries) Buffer(_ context.Context, _ string, _ *geojson.Geometry, m float64) ([]feature.Feature, error) {
	f.gotOp = "buffer"
	f.gotMeters = m
	return f.feats, f.err
}

type fakeImporter struct {
	count    int
	err      error
	gotTable string
	sawFile  bool
}

func (f *fakeImporter) ImportFile(_ context.Context, path, tableName string) (int, error) {
	f.gotTable = tableName
	if _, err := os.Stat(path); err == nil {
		f.sawFile = true
	}
	return f.count, f.err
}

type fixture struct {
	api      *API
	router   chi.Router
	tables   *fakeTables
	features *fakeFeatures
	queries  *fakeQueries
	importer *fakeImporter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	point := feature.Feature{
		ID:         1,
		Geometry:   geojson.NewGeometry(orb.Point{100, 0}),
		Properties: map[string]any{"name": "alpha"},
	}
	f := &fixture{
		tables:   &fakeTables{tables: []string{"parks"}},
		features: &fakeFeatures{feat: point},
		queries:  &fakeQueries{feats: []feature.Feature{point}},
		importer: &fakeImporter{count: 3},
	}
	f.api = New(Deps{
		Tables:    f.tables,
		Features:  f.features,
		Queries:   f.queries,
		Importer:  f.importer,
		Logger:    slog.New(slog.DiscardHandler),
		UploadDir: t.TempDir(),
	})
	f.router = chi.NewRouter()
	f.api.Routes(f.router)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestCreateTable(t *testing.T) {
	f := newFixture(t)
	body := `{"table_name":"parks","geometry_type":"POINT","srid":4326,` +
		`"fields":[{"name":"name","type":"VARCHAR(80)"},{"name":"height","type":"REAL","nullable":false}]}`
	w := f.do(t, http.MethodPost, "/spatial-tables/", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	spec := f.tables.spec
	if spec.Name != "parks" || spec.GeometryType != "POINT" || spec.SRID != 4326 {
		t.Fatalf("spec = %+v", spec)
	}
	if len(spec.Columns) != 2 || !spec.Columns[0].Nullable || spec.Columns[1].Nullable {
		t.Fatalf("columns = %+v", spec.Columns)
	}
}

func TestCreateTable_StoreRejectionIsClientError(t *testing.T) {
	f := newFixture(t)
	f.tables.createErr = &table.CreationError{Table: "parks", Err: errors.New(`type "gibberish" does not exist`)}
	body := `{"table_name":"parks","geometry_type":"POINT","srid":4326,` +
		`"fields":[{"name":"x","type":"GIBBERISH"}]}`
	w := f.do(t, http.MethodPost, "/spatial-tables/", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "gibberish") {
		t.Fatalf("store reason not surfaced: %s", w.Body.String())
	}
}

func TestDropTable_StoreRejectionIsClientError(t *testing.T) {
	f := newFixture(t)
	f.tables.dropErr = &table.DeletionError{Table: "parks", Err: errors.New("dependent objects exist")}
	w := f.do(t, http.MethodDelete, "/spatial-tables/parks", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
}

func TestCreateTable_MissingNameRejected(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/spatial-tables/", `{"geometry_type":"POINT"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestDescribeTable_NotFound(t *testing.T) {
	f := newFixture(t)
	f.tables.descErr = &table.NotFoundError{Table: "ghost"}
	w := f.do(t, http.MethodGet, "/spatial-tables/ghost", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestDropTable_AlwaysOK(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 2; i++ {
		w := f.do(t, http.MethodDelete, "/spatial-tables/parks", "")
		if w.Code != http.StatusOK {
			t.Fatalf("drop %d status = %d", i, w.Code)
		}
	}
	if len(f.tables.dropped) != 2 {
		t.Fatalf("dropped = %v", f.tables.dropped)
	}
}

func TestCreateFeature(t *testing.T) {
	f := newFixture(t)
	body := `{"name":"alpha","geometry":{"type":"Point","coordinates":[100,0]}}`
	w := f.do(t, http.MethodPost, "/features/parks/", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if f.features.gotDraft.Geometry == nil {
		t.Fatalf("geometry not passed through")
	}
	if f.features.gotDraft.Properties["name"] != "alpha" {
		t.Fatalf("properties = %v", f.features.gotDraft.Properties)
	}
	if !strings.Contains(w.Body.String(), `"id":1`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestCreateFeature_InvalidGeometry(t *testing.T) {
	f := newFixture(t)
	f.features.err = &geometry.InvalidGeometryError{Reason: "Polygon ring must be closed"}
	body := `{"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[9,9]]]}}`
	w := f.do(t, http.MethodPost, "/features/parks/", body)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGetFeature_NotFound(t *testing.T) {
	f := newFixture(t)
	f.features.err = repository.ErrNotFound
	w := f.do(t, http.MethodGet, "/features/parks/42", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGetFeature_BadID(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/features/parks/abc", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestUpdateFeature_EmptyPatch(t *testing.T) {
	f := newFixture(t)
	f.features.err = repository.ErrNoFieldsToUpdate
	w := f.do(t, http.MethodPut, "/features/parks/1", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestDeleteFeature_SecondDeleteNotFound(t *testing.T) {
	f := newFixture(t)
	if w := f.do(t, http.MethodDelete, "/features/parks/1", ""); w.Code != http.StatusOK {
		t.Fatalf("first delete status = %d", w.Code)
	}
	if w := f.do(t, http.MethodDelete, "/features/parks/1", ""); w.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", w.Code)
	}
}

func TestQuery_BBoxBoundsPassedThrough(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/features/parks/query/bbox", `{"bbox":[99,-1,101,1]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	want := []float64{99, -1, 101, 1}
	if len(f.queries.gotBounds) != len(want) {
		t.Fatalf("bounds = %v", f.queries.gotBounds)
	}
	for i, b := range f.queries.gotBounds {
		if b != want[i] {
			t.Fatalf("bounds = %v", f.queries.gotBounds)
		}
	}
}

func TestQuery_BBoxBareArray(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/features/parks/query/bbox", `[0,0,1,1]`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(f.queries.gotBounds) != 4 {
		t.Fatalf("bounds = %v", f.queries.gotBounds)
	}
}

func TestQuery_BBoxWrongArity(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/features/parks/query/bbox", `{"bbox":[1,2,3]}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestQuery_IntersectsBareGeometry(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/features/parks/query/intersects",
		`{"type":"Point","coordinates":[100,0]}`)
	if w.Code != http.StatusOK || f.queries.gotOp != "intersects" {
		t.Fatalf("status=%d op=%q", w.Code, f.queries.gotOp)
	}
}

func TestQuery_DistanceCarriesMeters(t *testing.T) {
	f := newFixture(t)
	body := `{"geometry":{"type":"Point","coordinates":[100,0]},"distance":10000}`
	w := f.do(t, http.MethodPost, "/features/parks/query/distance", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if f.queries.gotMeters != 10000 {
		t.Fatalf("meters = %v", f.queries.gotMeters)
	}
}

func TestQuery_DistanceMissingMeters(t *testing.T) {
	f := newFixture(t)
	body := `{"geometry":{"type":"Point","coordinates":[100,0]}}`
	w := f.do(t, http.MethodPost, "/features/parks/query/distance", body)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestQuery_UnknownPredicate(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/features/parks/query/nearest", `{}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func gpkgUpload(t *testing.T, filename string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = part.Write([]byte("not a real sqlite file, the importer is faked"))
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestImport_Succeeds(t *testing.T) {
	f := newFixture(t)
	body, ctype := gpkgUpload(t, "Parks.gpkg")
	req := httptest.NewRequest(http.MethodPost, "/import/geopackage/", body)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if f.importer.gotTable != "parks" {
		t.Fatalf("table = %q", f.importer.gotTable)
	}
	if !f.importer.sawFile {
		t.Fatalf("staged upload missing at import time")
	}
	if !strings.Contains(w.Body.String(), `"features":3`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestImport_RejectsNonGpkg(t *testing.T) {
	f := newFixture(t)
	body, ctype := gpkgUpload(t, "parks.zip")
	req := httptest.NewRequest(http.MethodPost, "/import/geopackage/", body)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestImport_MissingFileField(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "x")
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/import/geopackage/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/orata/spatial-gateway/internal/gpkg"
)

// importGeoPackage takes a multipart upload, stages it in a temp file and
// hands it to the import pipeline. The temp file is removed on every exit
// path.
func (a *API) importGeoPackage(w http.ResponseWriter, r *http.Request) {
	if a.deps.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.deps.MaxUploadBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		a.recordImport("client_error", 0)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field \"file\" is required"})
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".gpkg") {
		a.recordImport("client_error", 0)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "only .gpkg uploads are accepted"})
		return
	}

	tableName, err := gpkg.TableName(header.Filename)
	if err != nil {
		a.recordImport("client_error", 0)
		a.writeError(w, r, err)
		return
	}

	tmp, err := os.CreateTemp(a.deps.UploadDir, "upload-*.gpkg")
	if err != nil {
		a.recordImport("server_error", 0)
		a.writeError(w, r, err)
		return
	}
	defer os.Remove(tmp.Name())

	hash := xxhash.New()
	size, err := io.Copy(tmp, io.TeeReader(file, hash))
	closeErr := tmp.Close()
	if err != nil || closeErr != nil {
		a.recordImport("client_error", 0)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "upload truncated"})
		return
	}
	a.deps.Logger.InfoContext(r.Context(), "geopackage upload staged",
		"filename", header.Filename, "bytes", size, "xxhash", fmt.Sprintf("%016x", hash.Sum64()))

	count, err := a.deps.Importer.ImportFile(r.Context(), tmp.Name(), tableName)
	if err != nil {
		a.recordImport(importOutcome(err), 0)
		a.writeError(w, r, err)
		return
	}

	a.recordImport("ok", count)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  fmt.Sprintf("geopackage imported into table %s", tableName),
		"table":    tableName,
		"features": count,
	})
}

func (a *API) recordImport(outcome string, features int) {
	if a.deps.Imports != nil {
		a.deps.Imports.ObserveImport(outcome, features)
	}
}

func importOutcome(err error) string {
	var fileErr *gpkg.FileError
	if errors.As(err, &fileErr) || errors.Is(err, gpkg.ErrEmptyLayer) {
		return "client_error"
	}
	return "server_error"
}

package api

import (
	"errors"
	"net/http"

	"github.com/orata/spatial-gateway/internal/geometry"
	"github.com/orata/spatial-gateway/internal/gpkg"
	"github.com/orata/spatial-gateway/internal/ident"
	"github.com/orata/spatial-gateway/internal/repository"
	"github.com/orata/spatial-gateway/internal/spatialquery"
	"github.com/orata/spatial-gateway/internal/table"
)

// writeError maps a domain error onto its HTTP status. Client faults keep
// their message; store faults get logged and a generic body.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		identErr  *ident.InvalidIdentifierError
		geomErr   *geometry.InvalidGeometryError
		bboxErr   *spatialquery.InvalidBBoxError
		nfErr     *table.NotFoundError
		fileErr   *gpkg.FileError
		createErr *table.CreationError
		dropErr   *table.DeletionError
	)

	switch {
	// Table create/drop rejections carry the store's reason (a bad column
	// type string, usually) back to the caller as a client error.
	case errors.As(err, &identErr),
		errors.Is(err, repository.ErrNoFieldsToUpdate),
		errors.As(err, &fileErr),
		errors.Is(err, gpkg.ErrEmptyLayer),
		errors.As(err, &createErr),
		errors.As(err, &dropErr):
		writeJSON(w, http.StatusBadRequest, errBody(err))

	case errors.As(err, &geomErr), errors.As(err, &bboxErr):
		writeJSON(w, http.StatusUnprocessableEntity, errBody(err))

	case errors.As(err, &nfErr), errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errBody(err))

	default:
		a.deps.Logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func errBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

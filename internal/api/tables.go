package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/orata/spatial-gateway/internal/table"
)

type fieldSpec struct {
	Name     string `json:"name" validate:"required"`
	Type     string `json:"type" validate:"required"`
	Nullable *bool  `json:"nullable"`
}

type createTableRequest struct {
	TableName    string      `json:"table_name" validate:"required"`
	GeometryType string      `json:"geometry_type" validate:"required"`
	SRID         int         `json:"srid" validate:"gte=0"`
	Fields       []fieldSpec `json:"fields" validate:"dive"`
}

type columnOut struct {
	ColumnName string `json:"column_name"`
	DataType   string `json:"data_type"`
	UDTName    string `json:"udt_name"`
	IsNullable bool   `json:"is_nullable"`
}

func (a *API) createTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err))
		return
	}

	spec := table.Spec{
		Name:         req.TableName,
		GeometryType: req.GeometryType,
		SRID:         req.SRID,
	}
	for _, f := range req.Fields {
		// columns are nullable unless the caller says otherwise
		nullable := f.Nullable == nil || *f.Nullable
		spec.Columns = append(spec.Columns, table.ColumnSpec{
			Name:     f.Name,
			SQLType:  f.Type,
			Nullable: nullable,
		})
	}

	if err := a.deps.Tables.Create(r.Context(), spec); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"message": fmt.Sprintf("table %s created", req.TableName),
	})
}

func (a *API) listTables(w http.ResponseWriter, r *http.Request) {
	tables, err := a.deps.Tables.List(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (a *API) describeTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cols, err := a.deps.Tables.Describe(r.Context(), name)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out := make([]columnOut, 0, len(cols))
	for _, c := range cols {
		out = append(out, columnOut{
			ColumnName: c.Name,
			DataType:   c.DataType,
			UDTName:    c.UDTName,
			IsNullable: c.Nullable,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"table": name, "columns": out})
}

// dropTable answers 200 even when the table was already absent.
func (a *API) dropTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := a.deps.Tables.Drop(r.Context(), name); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("table %s deleted", name),
	})
}

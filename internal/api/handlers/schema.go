// schema.go - обработчики /api/schema: инспекция схемы MySQL.
package handlers

import (
	"fmt"
	"net/http"
	"strconv"
)

const (
	msgSchemaFailed  = "Failed to inspect database schema"
	msgSchemaCleared = "Schema cache cleared"
)

// GetSchema - GET /api/schema. Режим выбирается флагом:
// table, overview, metadata, validate, storage, cache=info;
// без флагов - полная схема. refresh=true обходит кэш.
func (h *APIHandler) GetSchema(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx := r.Context()
	refresh := flag(q.Get("refresh"))
	schema := h.svc.Schema

	var (
		data any
		err  error
	)
	switch {
	case q.Get("cache") == "info":
		data = schema.CacheInfo(ctx)
	case q.Get("table") != "":
		data, err = schema.Table(ctx, q.Get("table"), refresh)
	case flag(q.Get("overview")):
		data, err = schema.Overview(ctx, refresh)
	case flag(q.Get("metadata")):
		data, err = schema.Metadata(ctx, refresh)
	case flag(q.Get("validate")):
		data, err = schema.Validate(ctx, refresh)
	case flag(q.Get("storage")):
		data, err = schema.Storage(ctx, refresh)
	default:
		data, err = schema.Full(ctx, refresh)
	}
	if err != nil {
		h.writeServiceError(w, r, err, msgSchemaFailed)
		return
	}
	writeData(w, data, "")
}

// ClearSchemaCache - DELETE /api/schema.
func (h *APIHandler) ClearSchemaCache(w http.ResponseWriter, r *http.Request) {
	n := h.svc.Schema.ClearCache(r.Context())
	writeEnvelope(w, http.StatusOK, envelope{
		Data:    map[string]int{"cleared": n},
		Message: fmt.Sprintf("%s (%d entries)", msgSchemaCleared, n),
	})
}

func flag(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

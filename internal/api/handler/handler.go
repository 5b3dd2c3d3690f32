// Package handler holds the HTTP handlers. Each constructor takes the narrow
// service interface it needs and returns an http.HandlerFunc.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	mw "github.com/kiranshivaraju/keyhub/internal/api/middleware"
	"github.com/kiranshivaraju/keyhub/internal/api/response"
	"github.com/kiranshivaraju/keyhub/internal/store"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into v and reports failures itself. An empty
// body decodes to the zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON body", nil)
	return false
}

func tenantID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := mw.GetTenantID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
	}
	return id, ok
}

// pageParams parses ?limit and ?offset. Absent values take the defaults;
// present but non-numeric values are rejected.
func pageParams(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit, offset = store.DefaultPageLimit, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer", nil)
			return 0, 0, false
		}
		limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "offset must be an integer", nil)
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

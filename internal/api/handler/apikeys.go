package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/keyhub/internal/api/response"
	"github.com/kiranshivaraju/keyhub/internal/apikey"
	"github.com/kiranshivaraju/keyhub/internal/store"
	"github.com/kiranshivaraju/keyhub/pkg/models"
)

// KeyManager is the tenant-facing API key lifecycle.
type KeyManager interface {
	Create(ctx context.Context, tenantID int64, in apikey.CreateInput) (*apikey.Created, error)
	Rotate(ctx context.Context, kid string, tenantID int64, in apikey.CreateInput) (*apikey.Created, error)
	Deactivate(ctx context.Context, kid string, tenantID int64) error
	Remove(ctx context.Context, kid string, tenantID int64) error
	List(ctx context.Context, tenantID int64, limit, offset int) ([]models.APIKeyPublic, store.Page, error)
	History(ctx context.Context, kid string, tenantID int64) ([]models.APIKeyPublic, error)
}

type createdResponse struct {
	Message string `json:"message"`
	*apikey.Created
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/tenants/api-keys.
// The raw secret appears in this response and nowhere else.
func NewCreateKeyHandler(svc KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}
		var in apikey.CreateInput
		if !decodeJSON(w, r, &in) {
			return
		}

		created, err := svc.Create(r.Context(), tid, in)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, http.StatusCreated, createdResponse{
			Message: "API key created. Store it now; it will not be shown again.",
			Created: created,
		})
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/v1/tenants/api-keys.
func NewListKeysHandler(svc KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}
		limit, offset, ok := pageParams(w, r)
		if !ok {
			return
		}

		keys, page, err := svc.List(r.Context(), tid, limit, offset)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.Collection(w, keys, response.Pagination{
			Limit:  page.Limit,
			Offset: page.Offset,
			Count:  len(keys),
		})
	}
}

// NewUpdateKeyHandler returns an http.HandlerFunc for POST /api/v1/tenants/api-keys/{kid}.
// The only supported transition is to inactive.
func NewUpdateKeyHandler(svc KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}
		var req struct {
			Status models.Status `json:"status"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Status != models.StatusInactive {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				`status must be "inactive"; deactivated keys cannot be reactivated`, nil)
			return
		}

		if err := svc.Deactivate(r.Context(), chi.URLParam(r, "kid"), tid); err != nil {
			response.FromError(w, r, err)
			return
		}
		response.Message(w, "API key deactivated")
	}
}

// NewRotateKeyHandler returns an http.HandlerFunc for POST /api/v1/tenants/api-keys/{kid}/rotate.
func NewRotateKeyHandler(svc KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}
		var in apikey.CreateInput
		if !decodeJSON(w, r, &in) {
			return
		}

		created, err := svc.Rotate(r.Context(), chi.URLParam(r, "kid"), tid, in)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, http.StatusCreated, createdResponse{
			Message: "API key rotated. Store it now; it will not be shown again.",
			Created: created,
		})
	}
}

// NewKeyHistoryHandler returns an http.HandlerFunc for GET /api/v1/tenants/api-keys/{kid}/history.
func NewKeyHistoryHandler(svc KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}
		chain, err := svc.History(r.Context(), chi.URLParam(r, "kid"), tid)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.Data(w, chain)
	}
}

// NewRemoveKeyHandler returns an http.HandlerFunc for DELETE /api/v1/tenants/api-keys/{kid}.
func NewRemoveKeyHandler(svc KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}
		if err := svc.Remove(r.Context(), chi.URLParam(r, "kid"), tid); err != nil {
			response.FromError(w, r, err)
			return
		}
		response.Message(w, "API key removed")
	}
}

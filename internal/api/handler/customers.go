package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/keyhub/internal/api/response"
	"github.com/kiranshivaraju/keyhub/internal/customer"
	"github.com/kiranshivaraju/keyhub/pkg/models"
)

type CustomerSyncer interface {
	Sync(ctx context.Context, tenantID int64, in customer.SyncInput) (*models.User, error)
}

// NewSyncCustomerHandler returns an http.HandlerFunc for POST /api/v1/users/sync.
// The tenant comes from the verified API key, never from the body.
func NewSyncCustomerHandler(svc CustomerSyncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}
		var in customer.SyncInput
		if !decodeJSON(w, r, &in) {
			return
		}

		user, err := svc.Sync(r.Context(), tid, in)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, http.StatusOK, map[string]*models.User{"user": user})
	}
}

package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/kiranshivaraju/keyhub/internal/api/response"
	"github.com/kiranshivaraju/keyhub/internal/apperr"
	"github.com/kiranshivaraju/keyhub/internal/metrics"
	"github.com/kiranshivaraju/keyhub/internal/tenant"
)

// TenantAuth is the tenant sign-up and sign-in surface.
type TenantAuth interface {
	Register(ctx context.Context, in tenant.RegisterInput) (*tenant.AuthResult, error)
	Login(ctx context.Context, in tenant.LoginInput) (*tenant.AuthResult, error)
}

// NewRegisterHandler returns an http.HandlerFunc for POST /api/v1/tenants/register.
func NewRegisterHandler(svc TenantAuth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in tenant.RegisterInput
		if !decodeJSON(w, r, &in) {
			return
		}

		res, err := svc.Register(r.Context(), in)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, http.StatusCreated, res)
	}
}

// NewLoginHandler returns an http.HandlerFunc for POST /api/v1/tenants/login.
func NewLoginHandler(svc TenantAuth, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in tenant.LoginInput
		if !decodeJSON(w, r, &in) {
			return
		}

		res, err := svc.Login(r.Context(), in)
		if err != nil {
			m.AuthAttempt(metrics.MethodLogin, loginOutcome(err))
			response.FromError(w, r, err)
			return
		}
		m.AuthAttempt(metrics.MethodLogin, "ok")
		response.JSON(w, http.StatusOK, res)
	}
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, tenant.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, tenant.ErrNotActive):
		return "inactive"
	case apperr.KindOf(err) == apperr.Validation:
		return "invalid_input"
	default:
		return "error"
	}
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/keyhub/internal/api/middleware"
	"github.com/kiranshivaraju/keyhub/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	SessionAuth *mw.SessionAuth
	APIKeyAuth  *mw.APIKeyAuth
	RateLimit   *mw.RateLimit

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	RegisterHandler http.HandlerFunc
	LoginHandler    http.HandlerFunc

	CreateKeyHandler  http.HandlerFunc
	ListKeysHandler   http.HandlerFunc
	UpdateKeyHandler  http.HandlerFunc
	RotateKeyHandler  http.HandlerFunc
	KeyHistoryHandler http.HandlerFunc
	RemoveKeyHandler  http.HandlerFunc

	SyncCustomerHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Post("/api/v1/tenants/register", orNotImplemented(deps.RegisterHandler))
	r.Post("/api/v1/tenants/login", orNotImplemented(deps.LoginHandler))

	// Tenant session routes
	r.Route("/api/v1/tenants/api-keys", func(r chi.Router) {
		r.Use(deps.SessionAuth.Authenticate)

		r.Post("/", orNotImplemented(deps.CreateKeyHandler))
		r.Get("/", orNotImplemented(deps.ListKeysHandler))
		r.Post("/{kid}", orNotImplemented(deps.UpdateKeyHandler))
		r.Delete("/{kid}", orNotImplemented(deps.RemoveKeyHandler))
		r.Post("/{kid}/rotate", orNotImplemented(deps.RotateKeyHandler))
		r.Get("/{kid}/history", orNotImplemented(deps.KeyHistoryHandler))
	})

	// Machine routes
	r.Group(func(r chi.Router) {
		r.Use(deps.APIKeyAuth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/users/sync", orNotImplemented(deps.SyncCustomerHandler))
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}

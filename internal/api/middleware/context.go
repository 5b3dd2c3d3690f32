package middleware

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/keyhub/internal/apikey"
)

type contextKey string

const (
	tenantIDKey  contextKey = "tenant_id"
	principalKey contextKey = "api_key_principal"
	requestIDKey contextKey = "request_id"
)

func SetTenantID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, tenantIDKey, id)
}

// GetTenantID returns the tenant established by session or API-key auth.
func GetTenantID(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(tenantIDKey).(int64)
	return id, ok
}

func setPrincipal(ctx context.Context, p *apikey.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func GetPrincipal(r *http.Request) (*apikey.Principal, bool) {
	p, ok := r.Context().Value(principalKey).(*apikey.Principal)
	return p, ok && p != nil
}

func setRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

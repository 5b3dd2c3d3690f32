package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/keyhub/internal/api"
	"github.com/kiranshivaraju/keyhub/internal/api/handler"
	mw "github.com/kiranshivaraju/keyhub/internal/api/middleware"
	"github.com/kiranshivaraju/keyhub/internal/apikey"
	"github.com/kiranshivaraju/keyhub/internal/cache"
	"github.com/kiranshivaraju/keyhub/internal/credential"
	"github.com/kiranshivaraju/keyhub/internal/customer"
	"github.com/kiranshivaraju/keyhub/internal/metrics"
	"github.com/kiranshivaraju/keyhub/internal/store/storetest"
	"github.com/kiranshivaraju/keyhub/internal/tenant"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- stub cache ---

type stubCache struct{ count int64 }

func (c *stubCache) Ping(_ context.Context) error { return nil }
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, expiry time.Duration) (int64, time.Duration, error) {
	c.count++
	return c.count, expiry, nil
}

// --- router tests ---

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	db := storetest.New()
	cipher := credential.NewCipher(credential.Params{Time: 1, Memory: 1024, Threads: 1, BcryptCost: bcrypt.MinCost})
	signer, err := credential.NewSigner("test-secret", time.Hour, "keyhub-test")
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	tenants := tenant.NewService(db.Repos().Tenants, cipher, signer)
	keys := apikey.NewService(db, db.Repos().APIKeys, cipher, nil, m)
	guard := apikey.NewGuard(db.Repos().APIKeys, cipher)
	users := customer.NewService(db, m)

	return api.NewRouter(api.Dependencies{
		SessionAuth: mw.NewSessionAuth(tenants, m),
		APIKeyAuth:  mw.NewAPIKeyAuth(guard, m),
		RateLimit:   mw.NewRateLimit(&stubCache{}, 3, m),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		RegisterHandler:     handler.NewRegisterHandler(tenants),
		LoginHandler:        handler.NewLoginHandler(tenants, m),
		CreateKeyHandler:    handler.NewCreateKeyHandler(keys),
		ListKeysHandler:     handler.NewListKeysHandler(keys),
		UpdateKeyHandler:    handler.NewUpdateKeyHandler(keys),
		RotateKeyHandler:    handler.NewRotateKeyHandler(keys),
		KeyHistoryHandler:   handler.NewKeyHistoryHandler(keys),
		RemoveKeyHandler:    handler.NewRemoveKeyHandler(keys),
		SyncCustomerHandler: handler.NewSyncCustomerHandler(users),
	})
}

func call(t *testing.T, router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	router := newTestRouter(t)

	w := call(t, router, "GET", "/api/v1/health", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(mw.RequestIDHeader))
}

func TestRouter_SessionEndpoints_RequireToken(t *testing.T) {
	router := newTestRouter(t)

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/tenants/api-keys"},
		{"GET", "/api/v1/tenants/api-keys"},
		{"POST", "/api/v1/tenants/api-keys/kid_x"},
		{"DELETE", "/api/v1/tenants/api-keys/kid_x"},
		{"POST", "/api/v1/tenants/api-keys/kid_x/rotate"},
		{"GET", "/api/v1/tenants/api-keys/kid_x/history"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			w := call(t, router, ep.method, ep.path, nil, nil)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			errObj := decode(t, w)["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

func TestRouter_SyncRequiresAPIKey(t *testing.T) {
	router := newTestRouter(t)

	w := call(t, router, "POST", "/api/v1/users/sync", map[string]string{"name": "x"}, nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	errObj := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "INVALID_API_KEY", errObj["code"])
	assert.Equal(t, "invalid API key", errObj["message"])
}

func TestRouter_EndToEnd(t *testing.T) {
	router := newTestRouter(t)

	w := call(t, router, "POST", "/api/v1/tenants/register", map[string]string{
		"name": "Acme", "email": "ops@acme.com", "password": "Str0ng!Pass",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	token := decode(t, w)["token"].(map[string]any)["accessToken"].(string)
	session := map[string]string{"Authorization": "Bearer " + token}

	w = call(t, router, "POST", "/api/v1/tenants/api-keys", map[string]string{"label": "ci"}, session)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	secret := created["api_key"].(string)
	kid := created["key"].(map[string]any)["kid"].(string)

	// Credentials in the JSON body.
	w = call(t, router, "POST", "/api/v1/users/sync", map[string]string{
		"api_key_id":           kid,
		"api_key":              secret,
		"external_customer_id": "cust-1",
		"name":                 "Jane",
		"email":                "jane@example.com",
		"phone":                "5551234567",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "cust-1", decode(t, w)["user"].(map[string]any)["external_customer_id"])
	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))

	// Header credentials.
	keyHeaders := map[string]string{mw.HeaderAPIKeyID: kid, mw.HeaderAPIKey: secret}
	w = call(t, router, "POST", "/api/v1/users/sync", map[string]string{
		"external_customer_id": "cust-2",
		"name":                 "John",
		"email":                "john@example.com",
		"phone":                "5557654321",
	}, keyHeaders)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = call(t, router, "POST", "/api/v1/tenants/api-keys/"+kid, map[string]string{"status": "inactive"}, session)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = call(t, router, "POST", "/api/v1/users/sync", map[string]string{
		"external_customer_id": "cust-3", "name": "X", "email": "x@example.com", "phone": "5550000000",
	}, keyHeaders)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid API key", decode(t, w)["error"].(map[string]any)["message"])

	w = call(t, router, "GET", "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `keyhub_auth_attempts_total{method="api_key",outcome="key_inactive"} 1`)
	assert.Contains(t, w.Body.String(), `keyhub_customers_syncs_total{result="created"} 2`)
}

func TestRouter_RateLimited(t *testing.T) {
	router := newTestRouter(t)

	w := call(t, router, "POST", "/api/v1/tenants/register", map[string]string{
		"name": "Acme", "email": "ops@acme.com", "password": "Str0ng!Pass",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	token := decode(t, w)["token"].(map[string]any)["accessToken"].(string)

	w = call(t, router, "POST", "/api/v1/tenants/api-keys", nil, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	headers := map[string]string{
		mw.HeaderAPIKeyID: created["key"].(map[string]any)["kid"].(string),
		mw.HeaderAPIKey:   created["api_key"].(string),
	}
	body := map[string]string{"external_customer_id": "c", "name": "N", "email": "n@example.com", "phone": "5551234567"}

	for i := 0; i < 3; i++ {
		w = call(t, router, "POST", "/api/v1/users/sync", body, headers)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	w = call(t, router, "POST", "/api/v1/users/sync", body, headers)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(t)

	w := call(t, router, "GET", "/api/v1/nonexistent", nil, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

var _ cache.Cache = (*stubCache)(nil)

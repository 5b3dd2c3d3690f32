package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/keyhub/internal/api/response"
	"github.com/kiranshivaraju/keyhub/internal/apikey"
	"github.com/kiranshivaraju/keyhub/internal/apperr"
	"github.com/kiranshivaraju/keyhub/internal/credential"
	"github.com/kiranshivaraju/keyhub/internal/metrics"
)

const (
	HeaderAPIKeyID = "X-API-Key-ID"
	HeaderAPIKey   = "X-API-Key"

	// maxCredentialBody caps how much of a request body is buffered while
	// looking for body-borne API key credentials.
	maxCredentialBody = 1 << 20
)

// TokenAuthenticator resolves a session token to its claims.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*credential.Claims, error)
}

// KeyVerifier resolves a kid and secret to the principal that owns them.
type KeyVerifier interface {
	Verify(ctx context.Context, kid, secret string) (*apikey.Principal, error)
}

// SessionAuth validates the Bearer session token and sets tenant_id in the
// request context.
type SessionAuth struct {
	tokens  TokenAuthenticator
	metrics *metrics.Metrics
}

func NewSessionAuth(tokens TokenAuthenticator, m *metrics.Metrics) *SessionAuth {
	return &SessionAuth{tokens: tokens, metrics: m}
}

func (a *SessionAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearerToken(r)
		if raw == "" {
			a.metrics.AuthAttempt(metrics.MethodSession, "missing_token")
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		claims, err := a.tokens.Authenticate(r.Context(), raw)
		if err != nil {
			switch {
			case errors.Is(err, credential.ErrTokenExpired):
				a.metrics.AuthAttempt(metrics.MethodSession, "expired")
			case apperr.KindOf(err) == apperr.Unauthorized:
				a.metrics.AuthAttempt(metrics.MethodSession, "invalid")
			case apperr.KindOf(err) == apperr.Forbidden:
				a.metrics.AuthAttempt(metrics.MethodSession, "inactive")
				response.FromError(w, r, err)
				return
			default:
				response.FromError(w, r, err)
				return
			}
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", apperr.Message(err), nil)
			return
		}

		a.metrics.AuthAttempt(metrics.MethodSession, "ok")
		next.ServeHTTP(w, r.WithContext(SetTenantID(r.Context(), claims.SubjectID)))
	})
}

// APIKeyAuth authenticates machine clients by kid and secret, taken from the
// X-API-Key-ID / X-API-Key headers or else from the api_key_id / api_key
// fields of a JSON body. Every rejection gets the same 401 body; the reason
// is only logged and counted.
type APIKeyAuth struct {
	verifier KeyVerifier
	metrics  *metrics.Metrics
}

func NewAPIKeyAuth(v KeyVerifier, m *metrics.Metrics) *APIKeyAuth {
	return &APIKeyAuth{verifier: v, metrics: m}
}

func (a *APIKeyAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kid, secret, err := apiKeyCredentials(r)
		if err != nil {
			response.Error(w, http.StatusBadRequest,
				"VALIDATION_ERROR", "Invalid request body", nil)
			return
		}

		p, err := a.verifier.Verify(r.Context(), kid, secret)
		if err != nil {
			if apperr.KindOf(err) != apperr.Unauthorized {
				response.FromError(w, r, err)
				return
			}
			reason := rejectionReason(err)
			a.metrics.AuthAttempt(metrics.MethodAPIKey, reason)
			slog.WarnContext(r.Context(), "api key rejected",
				"request_id", GetRequestID(r.Context()),
				"kid", kid,
				"reason", reason,
			)
			response.Error(w, http.StatusUnauthorized,
				"INVALID_API_KEY", "invalid API key", nil)
			return
		}

		a.metrics.AuthAttempt(metrics.MethodAPIKey, "ok")
		ctx := SetTenantID(r.Context(), p.TenantID)
		ctx = setPrincipal(ctx, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// apiKeyCredentials prefers headers. When it has to look in the body, the
// body is buffered and restored so the handler can decode it again.
func apiKeyCredentials(r *http.Request) (kid, secret string, err error) {
	kid = r.Header.Get(HeaderAPIKeyID)
	secret = r.Header.Get(HeaderAPIKey)
	if kid != "" && secret != "" {
		return kid, secret, nil
	}
	if r.Body == nil || r.Body == http.NoBody {
		return kid, secret, nil
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxCredentialBody+1))
	r.Body.Close()
	if err != nil {
		return "", "", err
	}
	if len(buf) > maxCredentialBody {
		return "", "", errors.New("request body too large")
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))

	var body struct {
		APIKeyID string `json:"api_key_id"`
		APIKey   string `json:"api_key"`
	}
	if len(bytes.TrimSpace(buf)) == 0 {
		return kid, secret, nil
	}
	if err := json.Unmarshal(buf, &body); err != nil {
		return "", "", err
	}
	if kid == "" {
		kid = body.APIKeyID
	}
	if secret == "" {
		secret = body.APIKey
	}
	return kid, secret, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, apikey.ErrMissingKey):
		return "missing_key"
	case errors.Is(err, apikey.ErrUnknownKey):
		return "unknown_key"
	case errors.Is(err, apikey.ErrKeyInactive):
		return "key_inactive"
	case errors.Is(err, apikey.ErrInvalidSecret):
		return "invalid_secret"
	default:
		return "rejected"
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

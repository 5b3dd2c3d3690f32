package apikey

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/keyhub/internal/apperr"
	"github.com/kiranshivaraju/keyhub/internal/credential"
	"github.com/kiranshivaraju/keyhub/internal/store"
	"github.com/kiranshivaraju/keyhub/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Guard failures. The HTTP layer collapses all of them into one response.
var (
	ErrMissingKey    = apperr.New(apperr.Unauthorized, "missing key")
	ErrUnknownKey    = apperr.New(apperr.Unauthorized, "unknown key")
	ErrKeyInactive   = apperr.New(apperr.Unauthorized, "key inactive")
	ErrInvalidSecret = apperr.New(apperr.Unauthorized, "invalid secret")
)

// Principal is the identity established by a verified API key. It is the
// only trusted source of the tenant id on API-key routes.
type Principal struct {
	TenantID    int64
	KeyID       int64
	KID         string
	Environment models.KeyEnvironment
}

type Guard struct {
	keys   store.APIKeyRepository
	cipher *credential.Cipher
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func NewGuard(keys store.APIKeyRepository, cipher *credential.Cipher) *Guard {
	return &Guard{
		keys:   keys,
		cipher: cipher,
		logger: slog.Default(),
		tracer: otel.Tracer("github.com/kiranshivaraju/keyhub/internal/apikey"),
		now:    time.Now,
	}
}

// Verify resolves kid and checks secret against its stored hash. Expired
// keys count as inactive. On success last_used_at is stamped best-effort.
func (g *Guard) Verify(ctx context.Context, kid, secret string) (*Principal, error) {
	ctx, span := g.tracer.Start(ctx, "apikey.Guard.Verify",
		trace.WithAttributes(attribute.String("apikey.kid", kid)))
	defer span.End()

	if kid == "" || secret == "" {
		return nil, ErrMissingKey
	}

	k, err := g.keys.GetByKID(ctx, kid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownKey
	}
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Wrap(apperr.Storage, "look up api key", err)
	}

	now := g.now().UTC()
	if k.Status != models.StatusActive || k.Expired(now) {
		return nil, ErrKeyInactive
	}

	if !g.cipher.VerifySecret(secret, k.KeyHash) {
		return nil, ErrInvalidSecret
	}

	if err := g.keys.TouchLastUsed(ctx, k.ID, now); err != nil {
		g.logger.WarnContext(ctx, "failed to record api key use", "kid", kid, "error", err)
	}

	span.SetAttributes(attribute.Int64("tenant.id", k.TenantID))
	return &Principal{
		TenantID:    k.TenantID,
		KeyID:       k.ID,
		KID:         k.KID,
		Environment: k.Environment,
	}, nil
}

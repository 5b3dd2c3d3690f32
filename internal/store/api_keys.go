package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/keyhub/pkg/models"
)

var apiKeys = entity[models.APIKey]{
	table: "tenants_api_keys",
	columns: []string{"id", "tenant_id", "kid", "api_key_hash", "label", "environment", "status",
		"created_at", "updated_at", "last_used_at", "expires_at", "revoked_at", "rotated_from_key_id"},
	scan: func(row pgx.Row) (*models.APIKey, error) {
		var k models.APIKey
		err := row.Scan(&k.ID, &k.TenantID, &k.KID, &k.KeyHash, &k.Label, &k.Environment, &k.Status,
			&k.CreatedAt, &k.UpdatedAt, &k.LastUsedAt, &k.ExpiresAt, &k.RevokedAt, &k.RotatedFromKeyID)
		return &k, err
	},
}

// APIKeyStore implements APIKeyRepository.
type APIKeyStore struct {
	db DBTX
}

func NewAPIKeyStore(db DBTX) *APIKeyStore {
	return &APIKeyStore{db: db}
}

func (s *APIKeyStore) Create(ctx context.Context, k *models.APIKey) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO tenants_api_keys
		   (tenant_id, kid, api_key_hash, label, environment, status, created_at, updated_at, expires_at, rotated_from_key_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		k.TenantID, k.KID, k.KeyHash, k.Label, k.Environment, k.Status,
		k.CreatedAt, k.UpdatedAt, k.ExpiresAt, k.RotatedFromKeyID,
	).Scan(&k.ID)
	return classify("create api key", err)
}

func (s *APIKeyStore) GetByID(ctx context.Context, id int64) (*models.APIKey, error) {
	return apiKeys.one(ctx, s.db, "get api key", "WHERE id = $1", id)
}

func (s *APIKeyStore) GetByKID(ctx context.Context, kid string) (*models.APIKey, error) {
	return apiKeys.one(ctx, s.db, "get api key by kid", "WHERE kid = $1", kid)
}

// ListByTenant returns keys in creation order so offsets are stable.
func (s *APIKeyStore) ListByTenant(ctx context.Context, tenantID int64, page Page) ([]*models.APIKey, error) {
	return paginated(ctx, s.db, apiKeys, "list api keys", "tenant_id = $1", "id ASC", page, tenantID)
}

func (s *APIKeyStore) CountActive(ctx context.Context, tenantID int64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM tenants_api_keys WHERE tenant_id = $1 AND status = 'active'`, tenantID,
	).Scan(&n)
	if err != nil {
		return 0, classify("count active api keys", err)
	}
	return n, nil
}

// Deactivate is idempotent at the SQL level: revoked_at keeps its first value.
func (s *APIKeyStore) Deactivate(ctx context.Context, kid string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE tenants_api_keys
		 SET status = 'inactive', updated_at = $2, revoked_at = COALESCE(revoked_at, $2)
		 WHERE kid = $1`, kid, at)
	if err != nil {
		return classify("deactivate api key", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *APIKeyStore) Delete(ctx context.Context, kid string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM tenants_api_keys WHERE kid = $1`, kid)
	if err != nil {
		return classify("delete api key", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *APIKeyStore) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE tenants_api_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	return classify("touch api key", err)
}

// RotationChain follows rotated_from_key_id back from id, newest first.
// Each hop is a separate lookup; a missing predecessor ends the chain.
func RotationChain(ctx context.Context, keys APIKeyRepository, id int64, maxHops int) ([]*models.APIKey, error) {
	var chain []*models.APIKey
	next := &id
	for hops := 0; next != nil && hops < maxHops; hops++ {
		k, err := keys.GetByID(ctx, *next)
		if errors.Is(err, ErrNotFound) && hops > 0 {
			break
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, k)
		next = k.RotatedFromKeyID
	}
	return chain, nil
}

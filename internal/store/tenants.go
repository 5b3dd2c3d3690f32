package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/keyhub/pkg/models"
)

var tenants = entity[models.Tenant]{
	table: "tenants",
	columns: []string{"id", "name", "email", "password_hash", "password_salt",
		"status", "created_at", "updated_at"},
	scan: func(row pgx.Row) (*models.Tenant, error) {
		var t models.Tenant
		err := row.Scan(&t.ID, &t.Name, &t.Email, &t.PasswordHash, &t.PasswordSalt,
			&t.Status, &t.CreatedAt, &t.UpdatedAt)
		return &t, err
	},
}

// TenantStore implements TenantRepository.
type TenantStore struct {
	db DBTX
}

func NewTenantStore(db DBTX) *TenantStore {
	return &TenantStore{db: db}
}

func (s *TenantStore) Create(ctx context.Context, t *models.Tenant) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO tenants (name, email, password_hash, password_salt, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		t.Name, t.Email, t.PasswordHash, t.PasswordSalt, t.Status, t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
	return classify("create tenant", err)
}

func (s *TenantStore) GetByID(ctx context.Context, id int64) (*models.Tenant, error) {
	return tenants.one(ctx, s.db, "get tenant", "WHERE id = $1", id)
}

func (s *TenantStore) GetByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	return tenants.one(ctx, s.db, "get tenant by email", "WHERE email = $1", email)
}

func (s *TenantStore) GetByName(ctx context.Context, name string) (*models.Tenant, error) {
	return tenants.one(ctx, s.db, "get tenant by name", "WHERE name = $1", name)
}

func (s *TenantStore) LockByID(ctx context.Context, id int64) (*models.Tenant, error) {
	return tenants.one(ctx, s.db, "lock tenant", "WHERE id = $1 FOR UPDATE", id)
}

func (s *TenantStore) UpdateStatus(ctx context.Context, id int64, status models.Status, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE tenants SET status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
	if err != nil {
		return classify("update tenant status", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

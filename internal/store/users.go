package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/keyhub/pkg/models"
)

var users = entity[models.User]{
	table: "users",
	columns: []string{"id", "tenant_id", "external_customer_id", "name", "email", "phone",
		"status", "created_at", "updated_at"},
	scan: func(row pgx.Row) (*models.User, error) {
		var u models.User
		err := row.Scan(&u.ID, &u.TenantID, &u.ExternalCustomerID, &u.Name, &u.Email, &u.Phone,
			&u.Status, &u.CreatedAt, &u.UpdatedAt)
		return &u, err
	},
}

// UserStore implements UserRepository.
type UserStore struct {
	db DBTX
}

func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) GetByExternalID(ctx context.Context, tenantID int64, externalID string) (*models.User, error) {
	return users.one(ctx, s.db, "get user by external id",
		"WHERE tenant_id = $1 AND external_customer_id = $2", tenantID, externalID)
}

func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO users (tenant_id, external_customer_id, name, email, phone, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		u.TenantID, u.ExternalCustomerID, u.Name, u.Email, u.Phone, u.Status, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID)
	return classify("create user", err)
}

// Update writes the mutable fields of u and refreshes it from the stored row.
func (s *UserStore) Update(ctx context.Context, u *models.User) error {
	updated, err := users.scan(s.db.QueryRow(ctx,
		`UPDATE users SET name = $2, email = $3, phone = $4, status = $5, updated_at = $6
		 WHERE id = $1`+users.returning(),
		u.ID, u.Name, u.Email, u.Phone, u.Status, u.UpdatedAt))
	if err != nil {
		return classify("update user", err)
	}
	*u = *updated
	return nil
}

package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kiranshivaraju/keyhub/pkg/models"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx, so every repository works
// the same inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type TenantRepository interface {
	Create(ctx context.Context, t *models.Tenant) error
	GetByID(ctx context.Context, id int64) (*models.Tenant, error)
	GetByEmail(ctx context.Context, email string) (*models.Tenant, error)
	GetByName(ctx context.Context, name string) (*models.Tenant, error)
	// LockByID reads the tenant with SELECT ... FOR UPDATE. Only meaningful inside a transaction.
	LockByID(ctx context.Context, id int64) (*models.Tenant, error)
	UpdateStatus(ctx context.Context, id int64, status models.Status, at time.Time) error
}

type APIKeyRepository interface {
	Create(ctx context.Context, k *models.APIKey) error
	GetByID(ctx context.Context, id int64) (*models.APIKey, error)
	GetByKID(ctx context.Context, kid string) (*models.APIKey, error)
	ListByTenant(ctx context.Context, tenantID int64, page Page) ([]*models.APIKey, error)
	CountActive(ctx context.Context, tenantID int64) (int, error)
	Deactivate(ctx context.Context, kid string, at time.Time) error
	Delete(ctx context.Context, kid string) error
	TouchLastUsed(ctx context.Context, id int64, at time.Time) error
}

type UserRepository interface {
	GetByExternalID(ctx context.Context, tenantID int64, externalID string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
	Update(ctx context.Context, u *models.User) error
}

type RiskProfileRepository interface {
	GetByUserID(ctx context.Context, userID int64) (*models.RiskProfile, error)
	Create(ctx context.Context, p *models.RiskProfile) error
}

// Repos is one set of repositories bound to a single handle.
type Repos struct {
	Tenants      TenantRepository
	APIKeys      APIKeyRepository
	Users        UserRepository
	RiskProfiles RiskProfileRepository
}

// NewRepos binds a fresh set of repositories to db.
func NewRepos(db DBTX) *Repos {
	return &Repos{
		Tenants:      &TenantStore{db: db},
		APIKeys:      &APIKeyStore{db: db},
		Users:        &UserStore{db: db},
		RiskProfiles: &RiskProfileStore{db: db},
	}
}

// Transactor runs fn against repositories that share one transaction.
type Transactor interface {
	Run(ctx context.Context, fn func(ctx context.Context, r *Repos) error) error
}

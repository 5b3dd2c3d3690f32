package models

import "time"

// Tenant is a customer organization. Name and email are globally unique.
// Tenants are never hard-deleted; deactivation goes through Status.
type Tenant struct {
	ID           int64     `db:"id"            json:"id"`
	Name         string    `db:"name"          json:"name"`
	Email        string    `db:"email"         json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	PasswordSalt string    `db:"password_salt" json:"-"`
	Status       Status    `db:"status"        json:"status"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}

// TenantPublic is the sanitized tenant view. It never carries credentials.
type TenantPublic struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Tenant) Public() TenantPublic {
	return TenantPublic{
		ID:        t.ID,
		Name:      t.Name,
		Email:     t.Email,
		Status:    t.Status,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

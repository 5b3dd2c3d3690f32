package models

import "time"

// KeyEnvironment separates production keys from staging and development ones.
type KeyEnvironment string

const (
	EnvProduction  KeyEnvironment = "production"
	EnvStaging     KeyEnvironment = "staging"
	EnvDevelopment KeyEnvironment = "development"
)

func (e KeyEnvironment) Valid() bool {
	switch e {
	case EnvProduction, EnvStaging, EnvDevelopment:
		return true
	}
	return false
}

// APIKey is a machine-to-machine credential owned by a tenant.
// The raw secret is shown once at creation; only its bcrypt hash is stored.
// RotatedFromKeyID points at the key this one replaced, if any. Rotation
// chains are walked by repeated lookup on that id.
type APIKey struct {
	ID               int64          `db:"id"                  json:"id"`
	TenantID         int64          `db:"tenant_id"           json:"tenant_id"`
	KID              string         `db:"kid"                 json:"kid"`
	KeyHash          string         `db:"api_key_hash"        json:"-"`
	Label            string         `db:"label"               json:"label"`
	Environment      KeyEnvironment `db:"environment"         json:"environment"`
	Status           Status         `db:"status"              json:"status"`
	CreatedAt        time.Time      `db:"created_at"          json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"          json:"updated_at"`
	LastUsedAt       *time.Time     `db:"last_used_at"        json:"last_used_at,omitempty"`
	ExpiresAt        *time.Time     `db:"expires_at"          json:"expires_at,omitempty"`
	RevokedAt        *time.Time     `db:"revoked_at"          json:"revoked_at,omitempty"`
	RotatedFromKeyID *int64         `db:"rotated_from_key_id" json:"rotated_from_key_id,omitempty"`
}

// Expired reports whether the key has an expiry at or before now.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// APIKeyPublic is the sanitized key view. It never carries the hash.
type APIKeyPublic struct {
	ID               int64          `json:"id"`
	TenantID         int64          `json:"tenant_id"`
	KID              string         `json:"kid"`
	Label            string         `json:"label"`
	Environment      KeyEnvironment `json:"environment"`
	Status           Status         `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	LastUsedAt       *time.Time     `json:"last_used_at,omitempty"`
	ExpiresAt        *time.Time     `json:"expires_at,omitempty"`
	RevokedAt        *time.Time     `json:"revoked_at,omitempty"`
	RotatedFromKeyID *int64         `json:"rotated_from_key_id,omitempty"`
}

func (k *APIKey) Public() APIKeyPublic {
	return APIKeyPublic{
		ID:               k.ID,
		TenantID:         k.TenantID,
		KID:              k.KID,
		Label:            k.Label,
		Environment:      k.Environment,
		Status:           k.Status,
		CreatedAt:        k.CreatedAt,
		UpdatedAt:        k.UpdatedAt,
		LastUsedAt:       k.LastUsedAt,
		ExpiresAt:        k.ExpiresAt,
		RevokedAt:        k.RevokedAt,
		RotatedFromKeyID: k.RotatedFromKeyID,
	}
}

package models

import "time"

const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

// User is an end customer of a tenant. (TenantID, ExternalCustomerID) is the
// natural key used by customer sync.
type User struct {
	ID                 int64     `db:"id"                   json:"id"`
	TenantID           int64     `db:"tenant_id"            json:"tenant_id"`
	ExternalCustomerID string    `db:"external_customer_id" json:"external_customer_id"`
	Name               string    `db:"name"                 json:"name"`
	Email              string    `db:"email"                json:"email"`
	Phone              string    `db:"phone"                json:"phone"`
	Status             string    `db:"status"               json:"status"`
	CreatedAt          time.Time `db:"created_at"           json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"           json:"updated_at"`
}

// RiskProfile is the scoring companion of a User. Every synced user has exactly one.
type RiskProfile struct {
	ID        int64     `db:"id"         json:"id"`
	UserID    int64     `db:"user_id"    json:"user_id"`
	RiskScore int       `db:"risk_score" json:"risk_score"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

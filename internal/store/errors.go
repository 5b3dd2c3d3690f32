package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound      = errors.New("resource not found")
	ErrDuplicateKey  = errors.New("duplicate key violation")
	ErrForeignKey    = errors.New("foreign key violation")
	ErrSerialization = errors.New("serialization failure")
	ErrValueTooLong  = errors.New("value too long for column")
)

// Constraint names declared in migrations/000001_init.up.sql.
const (
	ConstraintTenantEmail    = "tenants_email_key"
	ConstraintTenantName     = "tenants_name_key"
	ConstraintKID            = "tenants_api_keys_kid_key"
	ConstraintOneActiveKey   = "tenants_api_keys_one_active_idx"
	ConstraintUserExternalID = "users_tenant_external_id_key"
	ConstraintRiskProfile    = "risk_profile_user_id_key"
)

// ConstraintError is a constraint violation reported by Postgres. It matches
// its Kind sentinel with errors.Is.
type ConstraintError struct {
	Kind       error
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%v (%s)", e.Kind, e.Constraint)
}

func (e *ConstraintError) Is(target error) bool { return target == e.Kind }
func (e *ConstraintError) Unwrap() error        { return e.Err }

// Violates reports whether err is a violation of the named constraint.
func Violates(err error, constraint string) bool {
	var ce *ConstraintError
	return errors.As(err, &ce) && ce.Constraint == constraint
}

// classify maps driver errors onto the package sentinels and wraps anything
// else with op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return &ConstraintError{Kind: ErrDuplicateKey, Constraint: pgErr.ConstraintName, Err: err}
		case "23503": // foreign_key_violation
			return &ConstraintError{Kind: ErrForeignKey, Constraint: pgErr.ConstraintName, Err: err}
		case "22001": // string_data_right_truncation
			return fmt.Errorf("%s: %w: %w", op, ErrValueTooLong, err)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%s: %w: %w", op, ErrSerialization, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

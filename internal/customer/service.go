// Package customer keeps a tenant's end customers in step with the tenant's
// own records. Every synced customer has a risk profile.
package customer

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/keyhub/internal/apperr"
	"github.com/kiranshivaraju/keyhub/internal/metrics"
	"github.com/kiranshivaraju/keyhub/internal/store"
	"github.com/kiranshivaraju/keyhub/pkg/models"
)

// syncAttempts bounds retries after losing an insert race on
// (tenant_id, external_customer_id).
const syncAttempts = 3

const minPhoneLen = 7

// Column widths of the users table.
const (
	maxExternalIDLen = 255
	maxNameLen       = 255
	maxEmailLen      = 255
	maxPhoneLen      = 64
)

type SyncInput struct {
	ExternalCustomerID string  `json:"external_customer_id"`
	Name               string  `json:"name"`
	Email              string  `json:"email"`
	Phone              string  `json:"phone"`
	Status             *string `json:"status,omitempty"`
}

type Service struct {
	tx      store.Transactor
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(tx store.Transactor, m *metrics.Metrics) *Service {
	return &Service{tx: tx, metrics: m, now: time.Now}
}

// Sync creates or updates the customer identified by in.ExternalCustomerID
// within tenantID and makes sure it has a risk profile, all in one
// transaction. A concurrent sync that inserts the same customer first makes
// this call retry, and the retry takes the update path.
func (s *Service) Sync(ctx context.Context, tenantID int64, in SyncInput) (*models.User, error) {
	in, err := validate(in)
	if err != nil {
		return nil, err
	}

	var (
		user    *models.User
		created bool
	)
	err = store.RunWithRetry(ctx, s.tx, syncAttempts, func(ctx context.Context, r *store.Repos) error {
		now := s.now().UTC()

		existing, err := r.Users.GetByExternalID(ctx, tenantID, in.ExternalCustomerID)
		switch {
		case err == nil:
			existing.Name = in.Name
			existing.Email = in.Email
			existing.Phone = in.Phone
			if in.Status != nil {
				existing.Status = *in.Status
			}
			existing.UpdatedAt = now
			if err := r.Users.Update(ctx, existing); err != nil {
				return err
			}
			user, created = existing, false
		case errors.Is(err, store.ErrNotFound):
			u := &models.User{
				TenantID:           tenantID,
				ExternalCustomerID: in.ExternalCustomerID,
				Name:               in.Name,
				Email:              in.Email,
				Phone:              in.Phone,
				Status:             models.UserStatusActive,
				CreatedAt:          now,
				UpdatedAt:          now,
			}
			if in.Status != nil {
				u.Status = *in.Status
			}
			if err := r.Users.Create(ctx, u); err != nil {
				return err
			}
			user, created = u, true
		default:
			return err
		}

		return ensureRiskProfile(ctx, r, user.ID, now)
	})
	if err != nil {
		s.metrics.CustomerSync("error")
		if errors.Is(err, store.ErrForeignKey) {
			return nil, apperr.Wrap(apperr.NotFound, "tenant not found", err)
		}
		if errors.Is(err, store.ErrValueTooLong) {
			return nil, apperr.Wrap(apperr.Validation, "value too long", err)
		}
		return nil, apperr.Wrap(apperr.Storage, "sync customer", err)
	}

	if created {
		s.metrics.CustomerSync("created")
	} else {
		s.metrics.CustomerSync("updated")
	}
	return user, nil
}

// ensureRiskProfile creates the zero-score profile if the user has none.
func ensureRiskProfile(ctx context.Context, r *store.Repos, userID int64, now time.Time) error {
	_, err := r.RiskProfiles.GetByUserID(ctx, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return r.RiskProfiles.Create(ctx, &models.RiskProfile{
		UserID:    userID,
		RiskScore: 0,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func validate(in SyncInput) (SyncInput, error) {
	in.ExternalCustomerID = strings.TrimSpace(in.ExternalCustomerID)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)

	invalid := func(msg string) (SyncInput, error) {
		return in, apperr.New(apperr.Validation, msg)
	}
	if utf8.RuneCountInString(in.ExternalCustomerID) > maxExternalIDLen {
		return invalid("External customer id must be at most 255 characters")
	}
	if utf8.RuneCountInString(in.Name) > maxNameLen {
		return invalid("Name must be at most 255 characters")
	}
	if utf8.RuneCountInString(in.Email) > maxEmailLen {
		return invalid("Email must be at most 255 characters")
	}
	if utf8.RuneCountInString(in.Phone) > maxPhoneLen {
		return invalid("Phone number must be at most 64 characters")
	}
	if in.ExternalCustomerID == "" {
		return invalid("External customer id is required")
	}
	if in.Name == "" {
		return invalid("Name is required")
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return invalid("Invalid email address")
	}
	if utf8.RuneCountInString(in.Phone) < minPhoneLen {
		return invalid("Phone number must be at least 7 digits")
	}
	if in.Status != nil && *in.Status != models.UserStatusActive && *in.Status != models.UserStatusInactive {
		return invalid("status must be active or inactive")
	}
	return in, nil
}

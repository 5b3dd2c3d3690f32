// Package apikey manages the lifecycle of tenant API keys and verifies keys
// presented by machine clients.
package apikey

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/keyhub/internal/apperr"
	"github.com/kiranshivaraju/keyhub/internal/credential"
	"github.com/kiranshivaraju/keyhub/internal/events"
	"github.com/kiranshivaraju/keyhub/internal/metrics"
	"github.com/kiranshivaraju/keyhub/internal/store"
	"github.com/kiranshivaraju/keyhub/pkg/models"
)

var (
	ErrActiveKeyExists = apperr.New(apperr.Conflict, "active key exists")
	ErrKeyNotFound     = apperr.New(apperr.NotFound, "api key not found")
	ErrNotOwner        = apperr.New(apperr.Forbidden, "key does not belong to tenant")
	ErrTenantNotFound  = apperr.New(apperr.NotFound, "tenant not found")
	ErrTenantInactive  = apperr.New(apperr.Forbidden, "not active")
	ErrKeyNotActive    = apperr.New(apperr.Conflict, "only an active key can be rotated")
	ErrKIDExhausted    = apperr.New(apperr.Conflict, "could not allocate a unique key id")
)

const (
	maxLabelLen = 255
	// kidAttempts bounds retries after a kid collision on the unique index.
	kidAttempts = 3
	// maxHistory bounds rotation chain walks.
	maxHistory = 100
)

type CreateInput struct {
	Label       string                `json:"label"`
	ExpiresAt   *time.Time            `json:"expires_at"`
	Environment models.KeyEnvironment `json:"environment"`
}

// Created carries the raw secret. It is returned exactly once.
type Created struct {
	Secret      string              `json:"api_key"`
	Key         models.APIKeyPublic `json:"key"`
	PreviousKID string              `json:"previous_kid,omitempty"`
}

type Service struct {
	tx      store.Transactor
	keys    store.APIKeyRepository
	cipher  *credential.Cipher
	events  events.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds the lifecycle service. keys serves reads outside a
// transaction; tx serves every multi-step write. pub and m may be nil.
func NewService(tx store.Transactor, keys store.APIKeyRepository, cipher *credential.Cipher, pub events.Publisher, m *metrics.Metrics) *Service {
	if pub == nil {
		pub = events.NewLogPublisher(nil)
	}
	return &Service{
		tx:      tx,
		keys:    keys,
		cipher:  cipher,
		events:  pub,
		metrics: m,
		logger:  slog.Default(),
		now:     time.Now,
	}
}

// Create issues a new active key for the tenant. A tenant holds at most one
// active key: the tenant row is locked for the check-then-insert, and the
// partial unique index on active keys rejects anything that slips past.
func (s *Service) Create(ctx context.Context, tenantID int64, in CreateInput) (*Created, error) {
	in, err := s.validateCreate(in)
	if err != nil {
		return nil, err
	}

	// Hash outside the transaction so the tenant lock is held briefly.
	gen, err := s.cipher.GenerateKey()
	if err != nil {
		return nil, err
	}

	var key *models.APIKey
	attempt := 0
	err = store.RunWithRetry(ctx, s.tx, kidAttempts, func(ctx context.Context, r *store.Repos) error {
		if attempt > 0 {
			if gen.KID, err = credential.NewKeyID(); err != nil {
				return err
			}
		}
		attempt++

		if _, err := s.lockActiveTenant(ctx, r, tenantID); err != nil {
			return err
		}
		key, err = s.insertActive(ctx, r, tenantID, gen, in, nil)
		return err
	})
	if err != nil {
		return nil, classify("create api key", err)
	}

	s.publish(ctx, events.KeyEvent{
		Type:        events.KeyCreated,
		TenantID:    tenantID,
		KID:         key.KID,
		Environment: string(key.Environment),
	})
	return &Created{Secret: gen.Secret, Key: key.Public()}, nil
}

// Rotate deactivates the tenant's active key kid and issues its replacement
// in one transaction. The new key records the old one in RotatedFromKeyID.
// Label and environment carry over unless in overrides them.
func (s *Service) Rotate(ctx context.Context, kid string, tenantID int64, in CreateInput) (*Created, error) {
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	gen, err := s.cipher.GenerateKey()
	if err != nil {
		return nil, err
	}

	var key, old *models.APIKey
	attempt := 0
	err = store.RunWithRetry(ctx, s.tx, kidAttempts, func(ctx context.Context, r *store.Repos) error {
		if attempt > 0 {
			if gen.KID, err = credential.NewKeyID(); err != nil {
				return err
			}
		}
		attempt++

		if _, err := s.lockActiveTenant(ctx, r, tenantID); err != nil {
			return err
		}
		old, err = s.owned(ctx, r.APIKeys, kid, tenantID)
		if err != nil {
			return err
		}
		if old.Status != models.StatusActive {
			return ErrKeyNotActive
		}
		if err := r.APIKeys.Deactivate(ctx, kid, s.now().UTC()); err != nil {
			return err
		}

		next := in
		if next.Label == "" {
			next.Label = old.Label
		}
		if next.Environment == "" {
			next.Environment = old.Environment
		}
		key, err = s.insertActive(ctx, r, tenantID, gen, next, &old.ID)
		return err
	})
	if err != nil {
		return nil, classify("rotate api key", err)
	}

	s.publish(ctx, events.KeyEvent{
		Type:        events.KeyRotated,
		TenantID:    tenantID,
		KID:         key.KID,
		PreviousKID: old.KID,
		Environment: string(key.Environment),
	})
	return &Created{Secret: gen.Secret, Key: key.Public(), PreviousKID: old.KID}, nil
}

// Deactivate marks kid inactive. Deactivating an inactive key is a no-op.
func (s *Service) Deactivate(ctx context.Context, kid string, tenantID int64) error {
	k, err := s.owned(ctx, s.keys, kid, tenantID)
	if err != nil {
		return classify("deactivate api key", err)
	}
	if k.Status == models.StatusInactive {
		return nil
	}

	if err := s.keys.Deactivate(ctx, kid, s.now().UTC()); err != nil {
		return classify("deactivate api key", err)
	}

	s.publish(ctx, events.KeyEvent{Type: events.KeyDeactivated, TenantID: tenantID, KID: kid})
	return nil
}

// Remove hard-deletes kid. Keys rotated from it lose their back-reference.
func (s *Service) Remove(ctx context.Context, kid string, tenantID int64) error {
	if _, err := s.owned(ctx, s.keys, kid, tenantID); err != nil {
		return classify("remove api key", err)
	}

	if err := s.keys.Delete(ctx, kid); err != nil {
		return classify("remove api key", err)
	}

	s.publish(ctx, events.KeyEvent{Type: events.KeyRemoved, TenantID: tenantID, KID: kid})
	return nil
}

// List returns one page of the tenant's keys in creation order. limit and
// offset are clamped by store.Paginate.
func (s *Service) List(ctx context.Context, tenantID int64, limit, offset int) ([]models.APIKeyPublic, store.Page, error) {
	page := store.Paginate(limit, offset)
	keys, err := s.keys.ListByTenant(ctx, tenantID, page)
	if err != nil {
		return nil, page, classify("list api keys", err)
	}
	out := make([]models.APIKeyPublic, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.Public())
	}
	return out, page, nil
}

// History returns kid followed by the keys it was rotated from, newest first.
func (s *Service) History(ctx context.Context, kid string, tenantID int64) ([]models.APIKeyPublic, error) {
	k, err := s.owned(ctx, s.keys, kid, tenantID)
	if err != nil {
		return nil, classify("api key history", err)
	}
	chain, err := store.RotationChain(ctx, s.keys, k.ID, maxHistory)
	if err != nil {
		return nil, classify("api key history", err)
	}
	out := make([]models.APIKeyPublic, 0, len(chain))
	for _, c := range chain {
		// Rotation never crosses tenants; stop if the data says otherwise.
		if c.TenantID != tenantID {
			break
		}
		out = append(out, c.Public())
	}
	return out, nil
}

func (s *Service) lockActiveTenant(ctx context.Context, r *store.Repos, tenantID int64) (*models.Tenant, error) {
	t, err := r.Tenants.LockByID(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.Status != models.StatusActive {
		return nil, ErrTenantInactive
	}
	return t, nil
}

func (s *Service) insertActive(ctx context.Context, r *store.Repos, tenantID int64, gen *credential.GeneratedKey, in CreateInput, rotatedFrom *int64) (*models.APIKey, error) {
	n, err := r.APIKeys.CountActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrActiveKeyExists
	}

	now := s.now().UTC()
	k := &models.APIKey{
		TenantID:         tenantID,
		KID:              gen.KID,
		KeyHash:          gen.Hash,
		Label:            in.Label,
		Environment:      in.Environment,
		Status:           models.StatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        in.ExpiresAt,
		RotatedFromKeyID: rotatedFrom,
	}
	if err := r.APIKeys.Create(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

// owned loads kid and checks that it belongs to tenantID.
func (s *Service) owned(ctx context.Context, keys store.APIKeyRepository, kid string, tenantID int64) (*models.APIKey, error) {
	k, err := keys.GetByKID(ctx, kid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	if k.TenantID != tenantID {
		return nil, ErrNotOwner
	}
	return k, nil
}

func (s *Service) validateCreate(in CreateInput) (CreateInput, error) {
	in, err := s.normalize(in)
	if err != nil {
		return in, err
	}
	if in.Environment == "" {
		in.Environment = models.EnvProduction
	}
	return in, nil
}

func (s *Service) normalize(in CreateInput) (CreateInput, error) {
	in.Label = strings.TrimSpace(in.Label)
	if utf8.RuneCountInString(in.Label) > maxLabelLen {
		return in, apperr.New(apperr.Validation, "label must be at most 255 characters long")
	}
	if in.Environment != "" && !in.Environment.Valid() {
		return in, apperr.New(apperr.Validation, "environment must be one of production, staging, development")
	}
	if in.ExpiresAt != nil {
		exp := in.ExpiresAt.UTC()
		if !exp.After(s.now()) {
			return in, apperr.New(apperr.Validation, "expires_at must be in the future")
		}
		in.ExpiresAt = &exp
	}
	return in, nil
}

// publish is best-effort: a broker outage never fails a committed change.
func (s *Service) publish(ctx context.Context, ev events.KeyEvent) {
	ev.OccurredAt = s.now().UTC()
	s.metrics.KeyEvent(string(ev.Type))
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "publish key event failed",
			"type", ev.Type,
			"kid", ev.KID,
			"error", err,
		)
	}
}

// classify maps store errors that escaped the service checks onto the error
// taxonomy. Already classified errors pass through.
func classify(op string, err error) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case store.Violates(err, store.ConstraintOneActiveKey):
		return ErrActiveKeyExists
	case store.Violates(err, store.ConstraintKID):
		return ErrKIDExhausted
	case errors.Is(err, store.ErrNotFound):
		return ErrKeyNotFound
	case errors.Is(err, store.ErrValueTooLong):
		return apperr.Wrap(apperr.Validation, "value too long", err)
	default:
		return apperr.Wrap(apperr.Storage, op, err)
	}
}

// Package tenant registers tenants and authenticates them with a password,
// issuing the session tokens used by the tenant console.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kiranshivaraju/keyhub/internal/apperr"
	"github.com/kiranshivaraju/keyhub/internal/credential"
	"github.com/kiranshivaraju/keyhub/internal/store"
	"github.com/kiranshivaraju/keyhub/pkg/models"
)

var (
	ErrTenantExists       = apperr.New(apperr.Conflict, "tenant exists")
	ErrInvalidCredentials = apperr.New(apperr.Unauthorized, "invalid credentials")
	ErrNotActive          = apperr.New(apperr.Forbidden, "not active")
	ErrTenantNotFound     = apperr.New(apperr.NotFound, "tenant not found")
)

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Tenant models.TenantPublic `json:"tenant"`
	Token  credential.Token    `json:"token"`
}

type Service struct {
	tenants store.TenantRepository
	cipher  *credential.Cipher
	signer  *credential.Signer
	now     func() time.Time
}

func NewService(tenants store.TenantRepository, cipher *credential.Cipher, signer *credential.Signer) *Service {
	return &Service{tenants: tenants, cipher: cipher, signer: signer, now: time.Now}
}

// Register creates an active tenant and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in, err := validateRegister(in)
	if err != nil {
		return nil, err
	}

	if err := s.ensureUnique(ctx, in.Name, in.Email); err != nil {
		return nil, err
	}

	hash, salt, err := s.cipher.HashPassword(in.Password, "")
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	t := &models.Tenant{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		PasswordSalt: salt,
		Status:       models.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.tenants.Create(ctx, t); err != nil {
		// Lost a race with a concurrent registration.
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrTenantExists
		}
		return nil, apperr.Wrap(apperr.Storage, "create tenant", err)
	}

	return s.signIn(t)
}

// Login verifies the password of the tenant registered under email. An
// unknown email and a wrong password fail identically.
func (s *Service) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in, err := validateLogin(in)
	if err != nil {
		return nil, err
	}

	t, err := s.tenants.GetByEmail(ctx, in.Email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "look up tenant", err)
	}

	if t.Status != models.StatusActive {
		return nil, ErrNotActive
	}

	if !s.cipher.VerifyPassword(in.Password, t.PasswordHash, t.PasswordSalt) {
		return nil, ErrInvalidCredentials
	}

	return s.signIn(t)
}

// Authenticate verifies a session token and returns its claims. Tokens of
// tenants that were deactivated after issuance are rejected.
func (s *Service) Authenticate(ctx context.Context, token string) (*credential.Claims, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return nil, err
	}

	t, err := s.tenants.GetByID(ctx, claims.SubjectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, credential.ErrTokenMalformed
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "look up tenant", err)
	}
	if t.Status != models.StatusActive {
		return nil, ErrNotActive
	}
	return claims, nil
}

// SetStatus changes a tenant's lifecycle status.
func (s *Service) SetStatus(ctx context.Context, tenantID int64, status models.Status) error {
	if !status.Valid() {
		return apperr.New(apperr.Validation, fmt.Sprintf("unknown status %q", status))
	}
	err := s.tenants.UpdateStatus(ctx, tenantID, status, s.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return ErrTenantNotFound
	}
	if err != nil {
		return apperr.Wrap(apperr.Storage, "update tenant status", err)
	}
	return nil
}

func (s *Service) ensureUnique(ctx context.Context, name, email string) error {
	lookups := []func(context.Context, string) (*models.Tenant, error){
		s.tenants.GetByEmail,
		s.tenants.GetByName,
	}
	for i, value := range []string{email, name} {
		_, err := lookups[i](ctx, value)
		if err == nil {
			return ErrTenantExists
		}
		if !errors.Is(err, store.ErrNotFound) {
			return apperr.Wrap(apperr.Storage, "look up tenant", err)
		}
	}
	return nil
}

func (s *Service) signIn(t *models.Tenant) (*AuthResult, error) {
	tok, err := s.signer.Issue(t.ID, t.Email)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Tenant: t.Public(), Token: tok}, nil
}

// Package client is a Go SDK for the KeyHub HTTP API.
//
// Tenant operations go through a Session returned by Register or Login; the
// session holds the bearer token, so several tenants can be driven from one
// process. Customer sync authenticates with an API key instead.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kiranshivaraju/keyhub/pkg/models"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("keyhub: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type Client struct {
	http *resty.Client
}

// New returns a client for the server at baseURL, e.g. "https://keyhub.example.com".
func New(baseURL string) *Client {
	return &Client{http: resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")}
}

// Token is the session token as issued by the server.
type Token struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

type authResult struct {
	Tenant models.TenantPublic `json:"tenant"`
	Token  Token               `json:"token"`
}

// Session is a signed-in tenant.
type Session struct {
	c         *Client
	Tenant    models.TenantPublic
	Token     Token
	ExpiresAt time.Time
}

// Register creates a tenant and returns its session.
func (c *Client) Register(ctx context.Context, name, email, password string) (*Session, error) {
	return c.signIn(ctx, "/api/v1/tenants/register", map[string]string{
		"name": name, "email": email, "password": password,
	})
}

func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	return c.signIn(ctx, "/api/v1/tenants/login", map[string]string{
		"email": email, "password": password,
	})
}

func (c *Client) signIn(ctx context.Context, path string, body any) (*Session, error) {
	var res authResult
	if err := c.do(c.http.R().SetContext(ctx).SetBody(body).SetResult(&res), http.MethodPost, path); err != nil {
		return nil, err
	}
	return &Session{
		c:         c,
		Tenant:    res.Tenant,
		Token:     res.Token,
		ExpiresAt: time.Now().Add(time.Duration(res.Token.ExpiresIn) * time.Second),
	}, nil
}

// KeyCredentials identify a machine client to the sync endpoint.
type KeyCredentials struct {
	KID    string
	Secret string
}

type SyncRequest struct {
	ExternalCustomerID string  `json:"external_customer_id"`
	Name               string  `json:"name"`
	Email              string  `json:"email"`
	Phone              string  `json:"phone"`
	Status             *string `json:"status,omitempty"`
}

// SyncCustomer upserts a customer of the tenant that owns creds.
func (c *Client) SyncCustomer(ctx context.Context, creds KeyCredentials, in SyncRequest) (*models.User, error) {
	var res struct {
		User *models.User `json:"user"`
	}
	req := c.http.R().SetContext(ctx).
		SetHeader("X-API-Key-ID", creds.KID).
		SetHeader("X-API-Key", creds.Secret).
		SetBody(in).
		SetResult(&res)
	if err := c.do(req, http.MethodPost, "/api/v1/users/sync"); err != nil {
		return nil, err
	}
	return res.User, nil
}

type CreateKeyRequest struct {
	Label       string                `json:"label,omitempty"`
	ExpiresAt   *time.Time            `json:"expires_at,omitempty"`
	Environment models.KeyEnvironment `json:"environment,omitempty"`
}

// CreatedKey carries the raw secret, which the server never returns again.
type CreatedKey struct {
	Message     string              `json:"message"`
	Secret      string              `json:"api_key"`
	Key         models.APIKeyPublic `json:"key"`
	PreviousKID string              `json:"previous_kid,omitempty"`
}

// Credentials returns the pair SyncCustomer needs.
func (k *CreatedKey) Credentials() KeyCredentials {
	return KeyCredentials{KID: k.Key.KID, Secret: k.Secret}
}

type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

type KeyPage struct {
	Data       []models.APIKeyPublic `json:"data"`
	Pagination Pagination            `json:"pagination"`
}

func (s *Session) r(ctx context.Context) *resty.Request {
	return s.c.http.R().SetContext(ctx).SetAuthToken(s.Token.AccessToken)
}

func (s *Session) CreateKey(ctx context.Context, in CreateKeyRequest) (*CreatedKey, error) {
	var out CreatedKey
	if err := s.c.do(s.r(ctx).SetBody(in).SetResult(&out), http.MethodPost, "/api/v1/tenants/api-keys"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListKeys returns one page of keys. A zero limit uses the server default.
func (s *Session) ListKeys(ctx context.Context, limit, offset int) (*KeyPage, error) {
	req := s.r(ctx)
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		req.SetQueryParam("offset", strconv.Itoa(offset))
	}
	var out KeyPage
	if err := s.c.do(req.SetResult(&out), http.MethodGet, "/api/v1/tenants/api-keys"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) DeactivateKey(ctx context.Context, kid string) error {
	body := map[string]string{"status": string(models.StatusInactive)}
	return s.c.do(s.r(ctx).SetBody(body), http.MethodPost, keyPath(kid))
}

// RotateKey replaces the active key kid. Empty fields in in carry over.
func (s *Session) RotateKey(ctx context.Context, kid string, in CreateKeyRequest) (*CreatedKey, error) {
	var out CreatedKey
	if err := s.c.do(s.r(ctx).SetBody(in).SetResult(&out), http.MethodPost, keyPath(kid)+"/rotate"); err != nil {
		return nil, err
	}
	return &out, nil
}

// KeyHistory returns kid and its predecessors, newest first.
func (s *Session) KeyHistory(ctx context.Context, kid string) ([]models.APIKeyPublic, error) {
	var out struct {
		Data []models.APIKeyPublic `json:"data"`
	}
	if err := s.c.do(s.r(ctx).SetResult(&out), http.MethodGet, keyPath(kid)+"/history"); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (s *Session) RemoveKey(ctx context.Context, kid string) error {
	return s.c.do(s.r(ctx), http.MethodDelete, keyPath(kid))
}

func keyPath(kid string) string {
	return "/api/v1/tenants/api-keys/" + url.PathEscape(kid)
}

func (c *Client) do(req *resty.Request, method, path string) error {
	var env errorEnvelope
	resp, err := req.SetError(&env).Execute(method, path)
	if err != nil {
		return fmt.Errorf("keyhub %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode(), Code: env.Error.Code, Message: env.Error.Message}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode())
		}
		return apiErr
	}
	return nil
}

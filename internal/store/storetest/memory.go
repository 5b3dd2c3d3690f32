// Package storetest provides an in-memory implementation of the store
// repositories and of store.Transactor for service and handler tests.
//
// Transactions are fully serialized and work on a copy of the data that
// replaces the committed copy on success. Unique and foreign-key constraints
// from the schema are emulated and reported with the same error values as
// the Postgres stores.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kiranshivaraju/keyhub/internal/store"
	"github.com/kiranshivaraju/keyhub/pkg/models"
)

// Hook runs once before the named operation. It receives repositories bound
// to the committed data, so it can simulate a concurrent writer. A non-nil
// return fails the operation with that error. Writes made by a hook are
// overwritten if the surrounding transaction commits, so a hook that writes
// should also fail the operation.
type Hook func(committed *store.Repos) error

type data struct {
	nextID  int64
	tenants map[int64]models.Tenant
	keys    map[int64]models.APIKey
	users   map[int64]models.User
	risks   map[int64]models.RiskProfile
}

func (d *data) clone() *data {
	c := &data{
		nextID:  d.nextID,
		tenants: make(map[int64]models.Tenant, len(d.tenants)),
		keys:    make(map[int64]models.APIKey, len(d.keys)),
		users:   make(map[int64]models.User, len(d.users)),
		risks:   make(map[int64]models.RiskProfile, len(d.risks)),
	}
	for k, v := range d.tenants {
		c.tenants[k] = v
	}
	for k, v := range d.keys {
		c.keys[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.risks {
		c.risks[k] = v
	}
	return c
}

func (d *data) id() int64 {
	d.nextID++
	return d.nextID
}

// DB is an in-memory database. The zero value is not usable; call New.
type DB struct {
	mu    sync.Mutex
	data  *data
	hooks map[string][]Hook

	Commits   int
	Rollbacks int
}

func New() *DB {
	return &DB{
		data:  (&data{}).clone(),
		hooks: map[string][]Hook{},
	}
}

// Repos returns autocommit repositories.
func (db *DB) Repos() *store.Repos {
	return newRepos(&handle{db: db})
}

// On registers h to run before the next call of op, e.g. "Users.Create".
func (db *DB) On(op string, h Hook) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.hooks[op] = append(db.hooks[op], h)
}

// Run implements store.Transactor.
func (db *DB) Run(ctx context.Context, fn func(ctx context.Context, r *store.Repos) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	h := &handle{db: db, tx: db.data.clone()}
	committed := false
	defer func() {
		if !committed {
			db.Rollbacks++
		}
	}()

	if err := fn(ctx, newRepos(h)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted before commit: %w", err)
	}
	db.data = h.tx
	db.Commits++
	committed = true
	return nil
}

// Counts returns the number of rows per table.
func (db *DB) Counts() (tenants, keys, users, risks int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.data.tenants), len(db.data.keys), len(db.data.users), len(db.data.risks)
}

// handle binds repositories to either the committed data (tx == nil, every
// call takes the lock) or to a transaction's copy (lock already held).
type handle struct {
	db *DB
	tx *data
	// bare marks a handle given to a hook: the lock is held and the data is
	// the committed copy.
	bare bool
}

func (h *handle) do(op string, fn func(d *data) error) error {
	if h.tx == nil && !h.bare {
		h.db.mu.Lock()
		defer h.db.mu.Unlock()
	}
	if !h.bare {
		if hooks := h.db.hooks[op]; len(hooks) > 0 {
			hook := hooks[0]
			h.db.hooks[op] = hooks[1:]
			if err := hook(newRepos(&handle{db: h.db, bare: true})); err != nil {
				return err
			}
		}
	}
	d := h.tx
	if d == nil {
		d = h.db.data
	}
	return fn(d)
}

func newRepos(h *handle) *store.Repos {
	return &store.Repos{
		Tenants:      &tenants{h},
		APIKeys:      &apiKeys{h},
		Users:        &users{h},
		RiskProfiles: &riskProfiles{h},
	}
}

func duplicate(constraint string) error {
	return &store.ConstraintError{Kind: store.ErrDuplicateKey, Constraint: constraint}
}

// --- tenants ---

type tenants struct{ h *handle }

func (r *tenants) Create(_ context.Context, t *models.Tenant) error {
	return r.h.do("Tenants.Create", func(d *data) error {
		for _, o := range d.tenants {
			if o.Email == t.Email {
				return duplicate(store.ConstraintTenantEmail)
			}
			if o.Name == t.Name {
				return duplicate(store.ConstraintTenantName)
			}
		}
		t.ID = d.id()
		d.tenants[t.ID] = *t
		return nil
	})
}

func (r *tenants) find(op string, match func(models.Tenant) bool) (*models.Tenant, error) {
	var out *models.Tenant
	err := r.h.do(op, func(d *data) error {
		for _, t := range d.tenants {
			if match(t) {
				t := t
				out = &t
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (r *tenants) GetByID(_ context.Context, id int64) (*models.Tenant, error) {
	return r.find("Tenants.GetByID", func(t models.Tenant) bool { return t.ID == id })
}

func (r *tenants) GetByEmail(_ context.Context, email string) (*models.Tenant, error) {
	return r.find("Tenants.GetByEmail", func(t models.Tenant) bool { return t.Email == email })
}

func (r *tenants) GetByName(_ context.Context, name string) (*models.Tenant, error) {
	return r.find("Tenants.GetByName", func(t models.Tenant) bool { return t.Name == name })
}

// LockByID needs no lock: transactions are already serialized.
func (r *tenants) LockByID(_ context.Context, id int64) (*models.Tenant, error) {
	return r.find("Tenants.LockByID", func(t models.Tenant) bool { return t.ID == id })
}

func (r *tenants) UpdateStatus(_ context.Context, id int64, status models.Status, at time.Time) error {
	return r.h.do("Tenants.UpdateStatus", func(d *data) error {
		t, ok := d.tenants[id]
		if !ok {
			return store.ErrNotFound
		}
		t.Status = status
		t.UpdatedAt = at
		d.tenants[id] = t
		return nil
	})
}

// --- api keys ---

type apiKeys struct{ h *handle }

func (r *apiKeys) Create(_ context.Context, k *models.APIKey) error {
	return r.h.do("APIKeys.Create", func(d *data) error {
		if _, ok := d.tenants[k.TenantID]; !ok {
			return &store.ConstraintError{Kind: store.ErrForeignKey, Constraint: "tenants_api_keys_tenant_id_fkey"}
		}
		for _, o := range d.keys {
			if o.KID == k.KID {
				return duplicate(store.ConstraintKID)
			}
			if k.Status == models.StatusActive && o.TenantID == k.TenantID && o.Status == models.StatusActive {
				return duplicate(store.ConstraintOneActiveKey)
			}
		}
		k.ID = d.id()
		d.keys[k.ID] = *k
		return nil
	})
}

func (r *apiKeys) find(op string, match func(models.APIKey) bool) (*models.APIKey, error) {
	var out *models.APIKey
	err := r.h.do(op, func(d *data) error {
		for _, k := range d.keys {
			if match(k) {
				k := k
				out = &k
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (r *apiKeys) GetByID(_ context.Context, id int64) (*models.APIKey, error) {
	return r.find("APIKeys.GetByID", func(k models.APIKey) bool { return k.ID == id })
}

func (r *apiKeys) GetByKID(_ context.Context, kid string) (*models.APIKey, error) {
	return r.find("APIKeys.GetByKID", func(k models.APIKey) bool { return k.KID == kid })
}

func (r *apiKeys) ListByTenant(_ context.Context, tenantID int64, page store.Page) ([]*models.APIKey, error) {
	out := []*models.APIKey{}
	err := r.h.do("APIKeys.ListByTenant", func(d *data) error {
		for _, k := range d.keys {
			if k.TenantID == tenantID {
				k := k
				out = append(out, &k)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if page.Offset >= len(out) {
		return []*models.APIKey{}, nil
	}
	out = out[page.Offset:]
	if len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return out, nil
}

func (r *apiKeys) CountActive(_ context.Context, tenantID int64) (int, error) {
	n := 0
	err := r.h.do("APIKeys.CountActive", func(d *data) error {
		for _, k := range d.keys {
			if k.TenantID == tenantID && k.Status == models.StatusActive {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *apiKeys) update(op, kid string, fn func(k *models.APIKey)) error {
	return r.h.do(op, func(d *data) error {
		for id, k := range d.keys {
			if k.KID == kid {
				fn(&k)
				d.keys[id] = k
				return nil
			}
		}
		return store.ErrNotFound
	})
}

func (r *apiKeys) Deactivate(_ context.Context, kid string, at time.Time) error {
	return r.update("APIKeys.Deactivate", kid, func(k *models.APIKey) {
		k.Status = models.StatusInactive
		k.UpdatedAt = at
		if k.RevokedAt == nil {
			k.RevokedAt = &at
		}
	})
}

func (r *apiKeys) Delete(_ context.Context, kid string) error {
	return r.h.do("APIKeys.Delete", func(d *data) error {
		var victim int64
		for id, k := range d.keys {
			if k.KID == kid {
				victim = id
			}
		}
		if victim == 0 {
			return store.ErrNotFound
		}
		delete(d.keys, victim)
		for id, k := range d.keys {
			if k.RotatedFromKeyID != nil && *k.RotatedFromKeyID == victim {
				k.RotatedFromKeyID = nil
				d.keys[id] = k
			}
		}
		return nil
	})
}

func (r *apiKeys) TouchLastUsed(_ context.Context, id int64, at time.Time) error {
	return r.h.do("APIKeys.TouchLastUsed", func(d *data) error {
		k, ok := d.keys[id]
		if !ok {
			return store.ErrNotFound
		}
		k.LastUsedAt = &at
		d.keys[id] = k
		return nil
	})
}

// --- users ---

type users struct{ h *handle }

func (r *users) GetByExternalID(_ context.Context, tenantID int64, externalID string) (*models.User, error) {
	var out *models.User
	err := r.h.do("Users.GetByExternalID", func(d *data) error {
		for _, u := range d.users {
			if u.TenantID == tenantID && u.ExternalCustomerID == externalID {
				u := u
				out = &u
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (r *users) Create(_ context.Context, u *models.User) error {
	return r.h.do("Users.Create", func(d *data) error {
		if _, ok := d.tenants[u.TenantID]; !ok {
			return &store.ConstraintError{Kind: store.ErrForeignKey, Constraint: "users_tenant_id_fkey"}
		}
		for _, o := range d.users {
			if o.TenantID == u.TenantID && o.ExternalCustomerID == u.ExternalCustomerID {
				return duplicate(store.ConstraintUserExternalID)
			}
		}
		u.ID = d.id()
		d.users[u.ID] = *u
		return nil
	})
}

func (r *users) Update(_ context.Context, u *models.User) error {
	return r.h.do("Users.Update", func(d *data) error {
		o, ok := d.users[u.ID]
		if !ok {
			return store.ErrNotFound
		}
		o.Name, o.Email, o.Phone, o.Status, o.UpdatedAt = u.Name, u.Email, u.Phone, u.Status, u.UpdatedAt
		d.users[u.ID] = o
		*u = o
		return nil
	})
}

// --- risk profiles ---

type riskProfiles struct{ h *handle }

func (r *riskProfiles) GetByUserID(_ context.Context, userID int64) (*models.RiskProfile, error) {
	var out *models.RiskProfile
	err := r.h.do("RiskProfiles.GetByUserID", func(d *data) error {
		for _, p := range d.risks {
			if p.UserID == userID {
				p := p
				out = &p
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (r *riskProfiles) Create(_ context.Context, p *models.RiskProfile) error {
	return r.h.do("RiskProfiles.Create", func(d *data) error {
		if _, ok := d.users[p.UserID]; !ok {
			return &store.ConstraintError{Kind: store.ErrForeignKey, Constraint: "risk_profile_user_id_fkey"}
		}
		for _, o := range d.risks {
			if o.UserID == p.UserID {
				return duplicate(store.ConstraintRiskProfile)
			}
		}
		p.ID = d.id()
		d.risks[p.ID] = *p
		return nil
	})
}

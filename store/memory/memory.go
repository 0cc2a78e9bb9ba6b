// Package memory is an in-process store.Credentials and store.Tenants used
// by tests, the demo server and the load test.
package memory

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/tipgate/store"
)

type Store struct {
	mu      sync.RWMutex
	tenants map[int]store.Tenant
	users   map[string]store.User
	tips    map[string]store.Tip
}

func New() *Store {
	return &Store{
		tenants: make(map[int]store.Tenant),
		users:   make(map[string]store.User),
		tips:    make(map[string]store.Tip),
	}
}

// PutTenant inserts or replaces a tenant. A malformed allow-list is rejected
// here rather than at login time.
func (s *Store) PutTenant(_ context.Context, t store.Tenant) error {
	if err := store.ValidateTenant(t); err != nil {
		return err
	}
	s.mu.Lock()
	s.tenants[t.ID] = t
	s.mu.Unlock()
	return nil
}

// PutUser inserts or replaces a user and returns its id, generating one when
// u.ID is empty. Usernames are unique per tenant.
func (s *Store) PutUser(_ context.Context, u store.User) (string, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.State == "" {
		u.State = store.StateEnabled
	}
	if err := store.ValidateUser(u); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.users {
		if id != u.ID && existing.TenantID == u.TenantID && existing.Username == u.Username {
			return "", fmt.Errorf("%w: username %q in tenant %d", store.ErrConflict, u.Username, u.TenantID)
		}
	}
	s.users[u.ID] = u
	return u.ID, nil
}

// PutTip inserts or replaces a tip and returns its id, generating one when
// t.ID is empty.
func (s *Store) PutTip(_ context.Context, t store.Tip) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := store.ValidateTip(t); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.tips {
		if id != t.ID && existing.TenantID == t.TenantID && existing.ReceiptHash == t.ReceiptHash {
			return "", fmt.Errorf("%w: receipt in tenant %d", store.ErrConflict, t.TenantID)
		}
	}
	s.tips[t.ID] = t
	return t.ID, nil
}

// User returns a user by id.
func (s *Store) User(_ context.Context, id string) (store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

// Tip returns a tip by id.
func (s *Store) Tip(_ context.Context, id string) (store.Tip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tips[id]
	if !ok {
		return store.Tip{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) Tenant(_ context.Context, id int) (store.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return store.Tenant{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) UsersByUsername(_ context.Context, username string, tenantIDs ...int) ([]store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.User
	for _, u := range s.users {
		if u.Username != username || !u.Enabled() {
			continue
		}
		for _, tid := range tenantIDs {
			if u.TenantID == tid {
				out = append(out, u)
				break
			}
		}
	}
	// Stable order so the first match is deterministic.
	sort.Slice(out, func(i, j int) bool {
		if out[i].TenantID != out[j].TenantID {
			return out[i].TenantID < out[j].TenantID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UserByAuthToken(_ context.Context, tenantID int, token string) (store.User, error) {
	if token == "" {
		return store.User{}, store.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.TenantID != tenantID || !u.Enabled() || u.AuthToken == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(u.AuthToken), []byte(token)) == 1 {
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (s *Store) TipByReceiptHash(_ context.Context, tenantID int, hash string) (store.Tip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tips {
		if t.TenantID == tenantID && t.ReceiptHash == hash {
			return t, nil
		}
	}
	return store.Tip{}, store.ErrNotFound
}

func (s *Store) TouchUserLogin(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.LastLogin = at
	s.users[userID] = u
	return nil
}

func (s *Store) TouchTipAccess(_ context.Context, tipID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tips[tipID]
	if !ok {
		return store.ErrNotFound
	}
	t.LastAccess = at
	s.tips[tipID] = t
	return nil
}

var (
	_ store.Credentials = (*Store)(nil)
	_ store.Tenants     = (*Store)(nil)
)

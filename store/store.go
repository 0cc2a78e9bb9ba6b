// Package store defines the records and read contracts the login flows need
// from the credential database.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/tipgate/netpolicy"
	"github.com/MrEthical07/tipgate/permission"
)

// RootTenantID is the tenant whose admins may log in to every other tenant.
const RootTenantID = 1

// User states.
const (
	StateEnabled  = "enabled"
	StateDisabled = "disabled"
)

var (
	// ErrNotFound is returned when no record matches.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("record already exists")
)

// User is a staff account.
type User struct {
	ID       string
	TenantID int
	Username string
	Role     permission.Role
	// PasswordHash is either a hex scrypt digest paired with Salt or an
	// argon2id PHC string with the salt embedded.
	PasswordHash string
	Salt         string
	State        string
	// AuthToken enables token login when non-empty.
	AuthToken            string
	LastLogin            time.Time
	PasswordChangeNeeded bool
}

// Enabled reports whether the account may authenticate.
func (u User) Enabled() bool {
	return u.State != StateDisabled
}

// Tip is a whistleblower submission reachable by its receipt.
type Tip struct {
	ID          string
	TenantID    int
	ReceiptHash string
	LastAccess  time.Time
}

// Tenant carries the per-tenant login settings.
type Tenant struct {
	ID     int
	Active bool
	// ReceiptSalt salts every receipt hash of the tenant.
	ReceiptSalt string
	Network     netpolicy.Policy
}

// Credentials is the read side used during login plus the two bookkeeping
// writes done on success.
type Credentials interface {
	// UsersByUsername returns the non-disabled users named username in any of
	// tenantIDs.
	UsersByUsername(ctx context.Context, username string, tenantIDs ...int) ([]User, error)
	// UserByAuthToken returns the non-disabled user of tenantID holding token.
	UserByAuthToken(ctx context.Context, tenantID int, token string) (User, error)
	// TipByReceiptHash returns the tip of tenantID whose receipt hashes to hash.
	TipByReceiptHash(ctx context.Context, tenantID int, hash string) (Tip, error)
	TouchUserLogin(ctx context.Context, userID string, at time.Time) error
	TouchTipAccess(ctx context.Context, tipID string, at time.Time) error
}

// Tenants resolves tenant settings.
type Tenants interface {
	Tenant(ctx context.Context, id int) (Tenant, error)
}

// ValidateTenant checks a tenant before it is persisted.
func ValidateTenant(t Tenant) error {
	if t.ID <= 0 {
		return errors.New("tenant id must be > 0")
	}
	if t.ReceiptSalt == "" {
		return errors.New("tenant receipt salt must not be empty")
	}
	return netpolicy.ValidateAllowList(t.Network.IPAllowList)
}

// ValidateUser checks a user before it is persisted.
func ValidateUser(u User) error {
	if u.ID == "" {
		return errors.New("user id must not be empty")
	}
	if u.TenantID <= 0 {
		return errors.New("user tenant id must be > 0")
	}
	if u.Username == "" {
		return errors.New("username must not be empty")
	}
	if !u.Role.Valid() || !u.Role.Staff() {
		return errors.New("user role must be a staff role")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash must not be empty")
	}
	if u.State != StateEnabled && u.State != StateDisabled {
		return errors.New("user state must be enabled or disabled")
	}
	return nil
}

// ValidateTip checks a tip before it is persisted.
func ValidateTip(t Tip) error {
	if t.ID == "" {
		return errors.New("tip id must not be empty")
	}
	if t.TenantID <= 0 {
		return errors.New("tip tenant id must be > 0")
	}
	if t.ReceiptHash == "" {
		return errors.New("tip receipt hash must not be empty")
	}
	return nil
}

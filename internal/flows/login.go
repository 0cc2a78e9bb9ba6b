package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tipgate/netpolicy"
	"github.com/MrEthical07/tipgate/permission"
	"github.com/MrEthical07/tipgate/session"
	"github.com/MrEthical07/tipgate/store"
)

// FailureKind classifies login failures for root-level mapping. Kinds are
// internal detail: several of them collapse to the same public error.
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureConfig covers unknown tenants, malformed allow-lists, receipt
	// salts and stored hashes.
	FailureConfig
	FailureTenantInactive
	FailureUnknownIdentity
	FailurePasswordMismatch
	FailureTokenMismatch
	FailureReceiptMismatch
	FailureNetworkRequired
	FailureOriginNotAllowed
	FailureBackend
)

// Credential reports whether the kind is a failed credential check, the only
// outcome that advances the throttle counter.
func (k FailureKind) Credential() bool {
	switch k {
	case FailureUnknownIdentity, FailurePasswordMismatch, FailureTokenMismatch, FailureReceiptMismatch:
		return true
	default:
		return false
	}
}

// Reason is the log/audit label of the kind.
func (k FailureKind) Reason() string {
	switch k {
	case FailureNone:
		return ""
	case FailureConfig:
		return "config_error"
	case FailureTenantInactive:
		return "tenant_inactive"
	case FailureUnknownIdentity:
		return "unknown_identity"
	case FailurePasswordMismatch:
		return "password_mismatch"
	case FailureTokenMismatch:
		return "token_mismatch"
	case FailureReceiptMismatch:
		return "receipt_mismatch"
	case FailureNetworkRequired:
		return "network_required"
	case FailureOriginNotAllowed:
		return "origin_not_allowed"
	case FailureBackend:
		return "backend_error"
	default:
		return "unknown"
	}
}

// SecretVerifier is the slice of password.Verifier the flows use.
type SecretVerifier interface {
	Verify(secret, storedHash, storedSalt string) (bool, error)
	VerifyDummy(secret string)
	HashReceipt(receipt, receiptSalt string) (string, error)
}

// LoginDeps captures staff and receipt login dependencies.
type LoginDeps struct {
	Tenants     store.Tenants
	Credentials store.Credentials
	Verifier    SecretVerifier
	Sessions    session.Registry
	Pacer       Pacer
	Now         func() time.Time
	// ConfigError receives configuration faults found while serving a
	// request, whatever the outcome of the request.
	ConfigError func(ctx context.Context, tenantID int, err error)
}

// LoginInput is a staff login attempt. A non-empty Token selects token login
// and Username is ignored.
type LoginInput struct {
	TenantID int
	Username string
	Password string
	Token    string
	Origin   netpolicy.Origin
}

// ReceiptInput is a whistleblower login attempt.
type ReceiptInput struct {
	TenantID int
	Receipt  string
	Origin   netpolicy.Origin
}

// LoginResult carries the created session or failure metadata. Waited is
// the total pause applied before answering; WaitErr is set when ctx ended
// during that pause.
type LoginResult struct {
	Failure  FailureKind
	Err      error
	TenantID int
	UserID   string
	Role     permission.Role
	Session  *session.Session
	Waited   time.Duration
	WaitErr  error
}

// RunLogin authenticates a staff principal:
//
//  1. resolve the tenant
//  2. find candidates by token, or by username in the tenant plus root-tenant admins
//  3. verify every candidate; with none, verify against a dummy hash
//  4. on no match, advance the throttle counter
//  5. apply the tenant network policy to the matched role
//  6. wait out the throttle delay and the uniform answer time
//  7. record the login and create the session
func RunLogin(ctx context.Context, in LoginInput, deps LoginDeps) LoginResult {
	start := deps.Now()
	res := LoginResult{TenantID: in.TenantID}

	tenant, kind, err := loadTenant(ctx, in.TenantID, deps)
	if kind != FailureNone {
		deps.Verifier.VerifyDummy(in.Password)
		return settle(ctx, start, deps, fail(res, kind, err))
	}

	user, kind, err := findStaff(ctx, in, deps)
	if kind != FailureNone {
		return settle(ctx, start, deps, fail(res, kind, err))
	}
	res.UserID = user.ID
	res.Role = user.Role

	if err := tenant.Network.AuthorizeOrigin(user.Role, in.Origin); err != nil {
		return settle(ctx, start, deps, fail(res, networkFailure(ctx, in.TenantID, err, deps), err))
	}

	if res = settle(ctx, start, deps, res); res.WaitErr != nil {
		return res
	}

	if err := deps.Credentials.TouchUserLogin(ctx, user.ID, deps.Now()); err != nil {
		return fail(res, FailureBackend, fmt.Errorf("record last login: %w", err))
	}

	sess, err := deps.Sessions.Create(ctx, session.NewSession{
		TenantID:             in.TenantID,
		UserID:               user.ID,
		Role:                 user.Role,
		Status:               user.State,
		PasswordChangeNeeded: user.PasswordChangeNeeded,
	})
	if err != nil {
		return fail(res, FailureBackend, fmt.Errorf("create session: %w", err))
	}
	res.Session = sess
	return res
}

func findStaff(ctx context.Context, in LoginInput, deps LoginDeps) (store.User, FailureKind, error) {
	if in.Token != "" {
		u, err := deps.Credentials.UserByAuthToken(ctx, in.TenantID, in.Token)
		// Token lookups are exact matches; the dummy keeps their cost in
		// line with password logins.
		deps.Verifier.VerifyDummy(in.Password)
		switch {
		case err == nil && u.Enabled() && u.Role.Staff():
			return u, FailureNone, nil
		case err == nil, errors.Is(err, store.ErrNotFound):
			return store.User{}, FailureTokenMismatch, nil
		default:
			return store.User{}, FailureBackend, fmt.Errorf("lookup by token: %w", err)
		}
	}

	tenants := []int{in.TenantID}
	if in.TenantID != store.RootTenantID {
		tenants = append(tenants, store.RootTenantID)
	}
	users, err := deps.Credentials.UsersByUsername(ctx, in.Username, tenants...)
	if err != nil {
		deps.Verifier.VerifyDummy(in.Password)
		return store.User{}, FailureBackend, fmt.Errorf("lookup by username: %w", err)
	}

	var (
		matched    store.User
		found      bool
		candidates int
	)
	for _, u := range users {
		if !eligible(u, in.TenantID) {
			continue
		}
		candidates++
		ok, err := deps.Verifier.Verify(in.Password, u.PasswordHash, u.Salt)
		if err != nil {
			// A broken record still costs one hash so it answers like a
			// wrong password.
			deps.Verifier.VerifyDummy(in.Password)
			reportConfig(ctx, deps, in.TenantID, fmt.Errorf("user %s: %w", u.ID, err))
			continue
		}
		if ok && !found {
			matched, found = u, true
		}
	}

	switch {
	case candidates == 0:
		deps.Verifier.VerifyDummy(in.Password)
		return store.User{}, FailureUnknownIdentity, nil
	case !found:
		return store.User{}, FailurePasswordMismatch, nil
	default:
		return matched, FailureNone, nil
	}
}

// eligible keeps enabled staff of the tenant itself, and admins of the root
// tenant who may log in to any tenant.
func eligible(u store.User, tenantID int) bool {
	if !u.Enabled() || !u.Role.Staff() {
		return false
	}
	if u.TenantID == tenantID {
		return true
	}
	return u.Role == permission.RoleAdmin && u.TenantID == store.RootTenantID
}

func loadTenant(ctx context.Context, tenantID int, deps LoginDeps) (store.Tenant, FailureKind, error) {
	tenant, err := deps.Tenants.Tenant(ctx, tenantID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		err = fmt.Errorf("tenant %d is not configured", tenantID)
		reportConfig(ctx, deps, tenantID, err)
		return store.Tenant{}, FailureConfig, err
	case err != nil:
		return store.Tenant{}, FailureBackend, fmt.Errorf("load tenant %d: %w", tenantID, err)
	case !tenant.Active:
		return store.Tenant{}, FailureTenantInactive, nil
	}
	return tenant, FailureNone, nil
}

func networkFailure(ctx context.Context, tenantID int, err error, deps LoginDeps) FailureKind {
	switch {
	case errors.Is(err, netpolicy.ErrNetworkRequired):
		return FailureNetworkRequired
	case errors.Is(err, netpolicy.ErrOriginNotAllowed):
		return FailureOriginNotAllowed
	default:
		reportConfig(ctx, deps, tenantID, err)
		return FailureConfig
	}
}

func reportConfig(ctx context.Context, deps LoginDeps, tenantID int, err error) {
	if deps.ConfigError != nil {
		deps.ConfigError(ctx, tenantID, err)
	}
}

func fail(res LoginResult, kind FailureKind, err error) LoginResult {
	res.Failure = kind
	res.Err = err
	return res
}

func settle(ctx context.Context, start time.Time, deps LoginDeps, res LoginResult) LoginResult {
	res.Waited, res.WaitErr = deps.Pacer.Settle(ctx, start, res.Failure.Credential())
	return res
}

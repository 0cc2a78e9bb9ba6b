package tipgate

import (
	"context"

	"github.com/MrEthical07/tipgate/netpolicy"
	"github.com/MrEthical07/tipgate/permission"
	"github.com/MrEthical07/tipgate/session"
)

// LoginRequest is a staff login. When Token is set the attempt is a token
// login and Username is ignored.
type LoginRequest struct {
	TenantID int
	Username string
	Password string
	Token    string
	Origin   netpolicy.Origin
}

// ReceiptLoginRequest is a whistleblower login.
type ReceiptLoginRequest struct {
	TenantID int
	Receipt  string
	Origin   netpolicy.Origin
}

// SessionDescriptor is what callers learn about a session.
type SessionDescriptor struct {
	SessionID string
	TenantID  int
	Role      permission.Role
	UserID    string
	// SessionExpiration is in unix seconds.
	SessionExpiration int64
	Status            string
	// PasswordChangeNeeded is only reported by Login.
	PasswordChangeNeeded bool
	Capabilities         permission.Mask64
}

func descriptorFromSession(s *session.Session, withPasswordChange bool) *SessionDescriptor {
	d := &SessionDescriptor{
		SessionID:         s.ID,
		TenantID:          s.TenantID,
		Role:              s.Role,
		UserID:            s.UserID,
		SessionExpiration: s.ExpiresAt.Unix(),
		Status:            s.Status,
		Capabilities:      s.Capabilities,
	}
	if withPasswordChange {
		d.PasswordChangeNeeded = s.PasswordChangeNeeded
	}
	return d
}

// SessionRevalidator is consulted before each session renewal. Returning an
// error revokes the session. Without one, role and status cached at login
// are trusted until the session expires.
type SessionRevalidator interface {
	Revalidate(ctx context.Context, tenantID int, userID string, role permission.Role) error
}

// SessionRevalidatorFunc adapts a function to SessionRevalidator.
type SessionRevalidatorFunc func(ctx context.Context, tenantID int, userID string, role permission.Role) error

func (f SessionRevalidatorFunc) Revalidate(ctx context.Context, tenantID int, userID string, role permission.Role) error {
	return f(ctx, tenantID, userID, role)
}

package session

import (
	"time"

	"github.com/MrEthical07/tipgate/permission"
)

// Session is an authenticated principal's server-side state. Role, status
// and capabilities are captured at creation and are not re-read from the
// principal on later access.
type Session struct {
	ID       string
	TenantID int
	UserID   string
	Role     permission.Role
	// Status mirrors the principal state at login, e.g. "Enabled".
	Status       string
	Capabilities permission.Mask64
	// PasswordChangeNeeded is only meaningful in the login response.
	PasswordChangeNeeded bool

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiration at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (s *Session) clone() *Session {
	out := *s
	return &out
}

// NewSession is the input to Registry.Create.
type NewSession struct {
	TenantID             int
	UserID               string
	Role                 permission.Role
	Status               string
	PasswordChangeNeeded bool
}

package session

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/tipgate/internal"
	"github.com/MrEthical07/tipgate/permission"
)

var (
	// ErrNotFound is returned for unknown, expired and revoked sessions alike.
	ErrNotFound = errors.New("session not found")
	// ErrBackendUnavailable wraps storage failures of a remote registry.
	ErrBackendUnavailable = errors.New("session backend unavailable")
	// ErrInvalidSession is returned by Create for input that cannot form a session.
	ErrInvalidSession = errors.New("invalid session")
)

// maxCreateAttempts bounds identifier regeneration on collision.
const maxCreateAttempts = 4

// Registry owns active sessions. Implementations must make Create, Get,
// Touch and Revoke linearizable per session identifier.
type Registry interface {
	// Create allocates a fresh identifier and stores the session.
	Create(ctx context.Context, in NewSession) (*Session, error)
	// Get returns the session without extending it.
	Get(ctx context.Context, id string) (*Session, error)
	// Touch extends the expiration and returns the refreshed session.
	Touch(ctx context.Context, id string) (*Session, error)
	// Revoke removes the session. Unknown identifiers are not an error.
	Revoke(ctx context.Context, id string) error
}

// Options configures expiration and identifier generation.
type Options struct {
	// TTL is the sliding idle timeout.
	TTL time.Duration
	// AbsoluteLifetime caps how long renewals can keep a session alive.
	// Zero disables the cap.
	AbsoluteLifetime time.Duration

	Now   func() time.Time
	NewID func() (string, error)
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = time.Hour
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = internal.NewSessionID
	}
	return o
}

// expiry computes the next expiration from now, bounded by the absolute cap.
func (o Options) expiry(createdAt, now time.Time) time.Time {
	next := now.Add(o.TTL)
	if o.AbsoluteLifetime > 0 {
		if limit := createdAt.Add(o.AbsoluteLifetime); limit.Before(next) {
			return limit
		}
	}
	return next
}

func (o Options) newSession(id string, in NewSession) *Session {
	now := o.Now()
	return &Session{
		ID:                   id,
		TenantID:             in.TenantID,
		UserID:               in.UserID,
		Role:                 in.Role,
		Status:               in.Status,
		Capabilities:         permission.CapabilitiesFor(in.Role),
		PasswordChangeNeeded: in.PasswordChangeNeeded,
		CreatedAt:            now,
		ExpiresAt:            o.expiry(now, now),
	}
}

func validateNew(in NewSession) error {
	if !in.Role.Valid() {
		return ErrInvalidSession
	}
	if in.UserID == "" {
		return ErrInvalidSession
	}
	return nil
}

package flows

import (
	"context"
	"fmt"

	"github.com/MrEthical07/tipgate/session"
)

// SessionDeps captures refresh and logout dependencies.
type SessionDeps struct {
	Sessions session.Registry
	// Revalidate, when set, is consulted before each renewal. An error
	// revokes the session and is returned; a failed revoke is noted in its
	// message only.
	Revalidate func(ctx context.Context, s *session.Session) error
}

// RunRefresh renews a session's sliding expiration and returns it. Without
// a Revalidate hook the cached role and status are trusted until expiry.
func RunRefresh(ctx context.Context, sessionID string, deps SessionDeps) (*session.Session, error) {
	if sessionID == "" {
		return nil, session.ErrNotFound
	}
	if deps.Revalidate != nil {
		sess, err := deps.Sessions.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if err := deps.Revalidate(ctx, sess); err != nil {
			if rerr := deps.Sessions.Revoke(ctx, sessionID); rerr != nil {
				return nil, fmt.Errorf("%w (revoke failed: %v)", err, rerr)
			}
			return nil, err
		}
	}
	return deps.Sessions.Touch(ctx, sessionID)
}

// RunLogout revokes a session. Unknown identifiers are not an error.
func RunLogout(ctx context.Context, sessionID string, deps SessionDeps) error {
	if sessionID == "" {
		return nil
	}
	return deps.Sessions.Revoke(ctx, sessionID)
}

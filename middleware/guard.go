package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/tipgate"
	"github.com/MrEthical07/tipgate/permission"
)

// SessionHeader carries the session identifier returned by login.
const SessionHeader = "X-Session"

// SessionRefresher is the slice of *tipgate.Engine the guards need.
type SessionRefresher interface {
	RefreshSession(ctx context.Context, sessionID string) (*tipgate.SessionDescriptor, error)
}

type sessionContextKey struct{}

func SessionFromContext(ctx context.Context) (*tipgate.SessionDescriptor, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*tipgate.SessionDescriptor)
	return s, ok
}

// WithSession attaches a descriptor to ctx the way Guard does.
func WithSession(ctx context.Context, s *tipgate.SessionDescriptor) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionID extracts the session identifier from the X-Session header, or
// from an "Authorization: Session <id>" header.
func SessionID(r *http.Request) (string, bool) {
	if id := strings.TrimSpace(r.Header.Get(SessionHeader)); id != "" {
		return id, true
	}
	const scheme = "Session "
	value := r.Header.Get("Authorization")
	if !strings.HasPrefix(value, scheme) {
		return "", false
	}
	id := strings.TrimSpace(value[len(scheme):])
	return id, id != ""
}

// Guard renews the caller's session and injects its descriptor into the
// request context. Requests without a live session get 401.
func Guard(engine SessionRefresher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, tipgate.ErrSessionNotFound)
				return
			}

			id, ok := SessionID(r)
			if !ok {
				WriteError(w, tipgate.ErrSessionNotFound)
				return
			}

			desc, err := engine.RefreshSession(r.Context(), id)
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), desc)))
		})
	}
}

// RequireRoles admits sessions whose role is one of roles. It must run
// after Guard.
func RequireRoles(roles ...permission.Role) func(http.Handler) http.Handler {
	return requireSession(func(s *tipgate.SessionDescriptor) bool {
		for _, role := range roles {
			if s.Role == role {
				return true
			}
		}
		return false
	})
}

// RequireCapability admits sessions whose capability mask holds c. It must
// run after Guard.
func RequireCapability(c permission.Capability) func(http.Handler) http.Handler {
	return requireSession(func(s *tipgate.SessionDescriptor) bool {
		return s.Capabilities.Has(c)
	})
}

func requireSession(allow func(*tipgate.SessionDescriptor) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := SessionFromContext(r.Context())
			if !ok {
				WriteError(w, tipgate.ErrSessionNotFound)
				return
			}
			if !allow(s) {
				WriteError(w, tipgate.ErrForbiddenOperation)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

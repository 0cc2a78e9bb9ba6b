package flows

import (
	"context"

	"github.com/MrEthical07/tipgate/session"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	d := s.deps.Login
	return d.Tenants != nil && d.Credentials != nil && d.Verifier != nil &&
		d.Sessions != nil && d.Pacer.Counter != nil && s.deps.Session.Sessions != nil
}

func (s Service) Login(ctx context.Context, in LoginInput) LoginResult {
	return RunLogin(ctx, in, s.deps.Login)
}

func (s Service) ReceiptLogin(ctx context.Context, in ReceiptInput) LoginResult {
	return RunReceiptLogin(ctx, in, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, sessionID string) (*session.Session, error) {
	return RunRefresh(ctx, sessionID, s.deps.Session)
}

func (s Service) Logout(ctx context.Context, sessionID string) error {
	return RunLogout(ctx, sessionID, s.deps.Session)
}

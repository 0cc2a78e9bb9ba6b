package tipgate

import "errors"

var (
	// ErrInvalidAuthentication is returned for any failed credential check,
	// and for configuration faults hit while serving a login. It never tells
	// an unknown identity apart from a wrong secret.
	ErrInvalidAuthentication = errors.New("invalid authentication")
	// ErrTorNetworkRequired is returned when the role may only log in over
	// the anonymity network.
	ErrTorNetworkRequired = errors.New("tor network required")
	// ErrAccessLocationInvalid is returned when the client address is outside
	// the tenant IP allow-list.
	ErrAccessLocationInvalid = errors.New("access location invalid")
	// ErrForbiddenOperation is returned when the feature is disabled at
	// tenant level.
	ErrForbiddenOperation = errors.New("forbidden operation")
	// ErrSessionNotFound is returned for unknown, expired and revoked
	// sessions. Callers should log in again.
	ErrSessionNotFound = errors.New("session not found")
	// ErrBackendUnavailable wraps store, registry and counter outages.
	ErrBackendUnavailable = errors.New("authentication backend unavailable")
	// ErrEngineNotReady is returned by a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

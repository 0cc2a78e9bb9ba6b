package tipgate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventReceiptLoginSuccess   = "receipt_login_success"
	auditEventReceiptLoginFailure   = "receipt_login_failure"
	auditEventNetworkDenied         = "network_denied"
	auditEventAccessLocationDenied  = "access_location_denied"
	auditEventSessionRefreshed      = "session_refreshed"
	auditEventSessionRefreshInvalid = "session_refresh_invalid"
	auditEventLogout                = "logout"
	auditEventConfigError           = "config_error"
)

// AuditErrorCode is the stable error label carried by audit events.
type AuditErrorCode string

const (
	auditErrInvalidAuthentication AuditErrorCode = "invalid_authentication"
	auditErrTorNetworkRequired    AuditErrorCode = "tor_network_required"
	auditErrAccessLocationInvalid AuditErrorCode = "access_location_invalid"
	auditErrForbiddenOperation    AuditErrorCode = "forbidden_operation"
	auditErrSessionNotFound       AuditErrorCode = "session_not_found"
	auditErrUnavailable           AuditErrorCode = "backend_unavailable"
	auditErrCancelled             AuditErrorCode = "cancelled"
	auditErrInternal              AuditErrorCode = "internal_error"
)

// auditSubject is who an audit event is about.
type auditSubject struct {
	tenantID  int
	userID    string
	role      string
	sessionID string
	tor       bool
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject auditSubject,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}
	if subject.tenantID == 0 {
		subject.tenantID = tenantIDFromContext(ctx)
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		TenantID:   subject.tenantID,
		UserID:     subject.userID,
		Role:       subject.role,
		SessionRef: sessionRef(subject.sessionID),
		IP:         clientIPFromContext(ctx),
		Tor:        subject.tor,
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// sessionRef is a short digest that lets events of one session be
// correlated without exposing the bearer identifier.
func sessionRef(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:6])
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidAuthentication):
		return auditErrInvalidAuthentication
	case errors.Is(err, ErrTorNetworkRequired):
		return auditErrTorNetworkRequired
	case errors.Is(err, ErrAccessLocationInvalid):
		return auditErrAccessLocationInvalid
	case errors.Is(err, ErrForbiddenOperation):
		return auditErrForbiddenOperation
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return auditErrCancelled
	default:
		return auditErrInternal
	}
}

package tipgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/tipgate/internal/flows"
	"github.com/MrEthical07/tipgate/session"
	"github.com/MrEthical07/tipgate/throttle"
)

// Engine authenticates staff and whistleblowers and manages their sessions.
// It is safe for concurrent use once built.
type Engine struct {
	config      Config
	flows       flows.Service
	sessions    session.Registry
	counter     throttle.Counter
	audit       *auditDispatcher
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
	stopJanitor context.CancelFunc
}

// Close stops background work and flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.stopJanitor != nil {
		e.stopJanitor()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// FailedLoginAttempts returns the process-wide failure counter that drives
// the throttle delay.
func (e *Engine) FailedLoginAttempts(ctx context.Context) (int64, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	n, err := e.counter.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return n, nil
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// loginKind names the audit events and counters of one login entry point.
type loginKind struct {
	successEvent  string
	failureEvent  string
	successMetric MetricID
	failureMetric MetricID
}

var (
	staffLogin = loginKind{
		successEvent:  auditEventLoginSuccess,
		failureEvent:  auditEventLoginFailure,
		successMetric: MetricLoginSuccess,
		failureMetric: MetricLoginFailure,
	}
	receiptLogin = loginKind{
		successEvent:  auditEventReceiptLoginSuccess,
		failureEvent:  auditEventReceiptLoginFailure,
		successMetric: MetricReceiptLoginSuccess,
		failureMetric: MetricReceiptLoginFailure,
	}
)

// Login authenticates a staff principal by username and password, or by
// auth token when req.Token is set. Every answer, success or failure, is
// delayed by the current throttle delay and padded to the uniform answer
// time.
//
// Failed credential checks return ErrInvalidAuthentication whatever the
// cause. Valid credentials can still be refused with ErrTorNetworkRequired
// or ErrAccessLocationInvalid; those refusals do not advance the throttle
// counter. If ctx ends during the wait, ctx.Err() is returned and a failure
// already counted stays counted.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*SessionDescriptor, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := e.now()
	res := e.flows.Login(ctx, flows.LoginInput{
		TenantID: req.TenantID,
		Username: req.Username,
		Password: req.Password,
		Token:    req.Token,
		Origin:   req.Origin,
	})
	return e.finishLogin(ctx, staffLogin, start, req.Origin.Tor, res, true)
}

// ReceiptLogin authenticates a whistleblower by receipt. It is paced like
// Login, and the returned session always has role whistleblower and status
// "Enabled".
func (e *Engine) ReceiptLogin(ctx context.Context, req ReceiptLoginRequest) (*SessionDescriptor, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := e.now()
	res := e.flows.ReceiptLogin(ctx, flows.ReceiptInput{
		TenantID: req.TenantID,
		Receipt:  req.Receipt,
		Origin:   req.Origin,
	})
	return e.finishLogin(ctx, receiptLogin, start, req.Origin.Tor, res, false)
}

func (e *Engine) finishLogin(
	ctx context.Context,
	kind loginKind,
	start time.Time,
	tor bool,
	res flows.LoginResult,
	withPasswordChange bool,
) (*SessionDescriptor, error) {
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricLoginLatency, e.now().Sub(start))
	}
	if res.Waited > e.config.Throttle.UniformResponseTime {
		e.metricInc(MetricThrottleDelayed)
	}

	subject := auditSubject{
		tenantID: res.TenantID,
		userID:   res.UserID,
		tor:      tor,
	}
	if res.Role.Valid() {
		subject.role = res.Role.String()
	}

	if res.WaitErr != nil {
		e.metricInc(MetricLoginCancelled)
		e.metricInc(kind.failureMetric)
		e.emitAudit(ctx, kind.failureEvent, false, subject, res.WaitErr, nil)
		return nil, res.WaitErr
	}

	if res.Failure != flows.FailureNone {
		err := e.loginFailure(ctx, kind, subject, res)
		return nil, err
	}

	subject.sessionID = res.Session.ID
	e.metricInc(kind.successMetric)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, kind.successEvent, true, subject, nil, nil)
	return descriptorFromSession(res.Session, withPasswordChange), nil
}

func (e *Engine) loginFailure(ctx context.Context, kind loginKind, subject auditSubject, res flows.LoginResult) error {
	err := publicLoginError(res.Failure, res.Err)
	reason := res.Failure.Reason()
	e.metricInc(kind.failureMetric)

	switch res.Failure {
	case flows.FailureNetworkRequired:
		e.metricInc(MetricNetworkDenied)
		e.logger.WarnContext(ctx, "login refused over clear network",
			"tenant_id", subject.tenantID, "role", subject.role)
		e.emitAudit(ctx, auditEventNetworkDenied, false, subject, err, nil)
		return err
	case flows.FailureOriginNotAllowed:
		e.metricInc(MetricAccessLocationDenied)
		e.logger.WarnContext(ctx, "login refused outside ip allow-list",
			"tenant_id", subject.tenantID, "role", subject.role, "client_ip", clientIPFromContext(ctx))
		e.emitAudit(ctx, auditEventAccessLocationDenied, false, subject, err, nil)
		return err
	case flows.FailureBackend:
		e.metricInc(MetricBackendError)
		e.logger.ErrorContext(ctx, "login backend failure",
			"tenant_id", subject.tenantID, "error", res.Err)
	case flows.FailureTenantInactive:
		e.metricInc(MetricTenantForbidden)
		e.logger.DebugContext(ctx, "login to inactive tenant", "tenant_id", subject.tenantID)
	case flows.FailureConfig:
		// Already reported through configError.
	default:
		e.logger.DebugContext(ctx, "login failed",
			"tenant_id", subject.tenantID, "reason", reason)
	}

	e.emitAudit(ctx, kind.failureEvent, false, subject, err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return err
}

// publicLoginError collapses a failure kind into the caller-visible error.
func publicLoginError(kind flows.FailureKind, cause error) error {
	switch {
	case kind.Credential(), kind == flows.FailureConfig:
		return ErrInvalidAuthentication
	case kind == flows.FailureTenantInactive:
		return ErrForbiddenOperation
	case kind == flows.FailureNetworkRequired:
		return ErrTorNetworkRequired
	case kind == flows.FailureOriginNotAllowed:
		return ErrAccessLocationInvalid
	case kind == flows.FailureBackend:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, cause)
	default:
		return ErrInvalidAuthentication
	}
}

func (e *Engine) configError(ctx context.Context, tenantID int, err error) {
	e.metricInc(MetricConfigError)
	e.logger.ErrorContext(ctx, "tenant configuration error", "tenant_id", tenantID, "error", err)
	e.emitAudit(ctx, auditEventConfigError, false, auditSubject{tenantID: tenantID}, nil, func() map[string]string {
		return map[string]string{"detail": err.Error()}
	})
}

func (e *Engine) counterError(ctx context.Context, err error) {
	e.metricInc(MetricBackendError)
	e.logger.ErrorContext(ctx, "throttle counter unavailable, applying maximum delay", "error", err)
}

// RefreshSession extends the sliding expiration of a session and describes
// it. Unknown, expired and revoked sessions return ErrSessionNotFound, as
// does a session refused by the SessionRevalidator, which is revoked.
func (e *Engine) RefreshSession(ctx context.Context, sessionID string) (*SessionDescriptor, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	subject := auditSubject{sessionID: sessionID}

	sess, err := e.flows.Refresh(ctx, sessionID)
	if err != nil {
		err = publicSessionError(err)
		if errors.Is(err, ErrSessionNotFound) {
			e.metricInc(MetricSessionNotFound)
		} else {
			e.metricInc(MetricBackendError)
			e.logger.ErrorContext(ctx, "session refresh failed",
				"session_ref", sessionRef(sessionID), "error", err)
		}
		e.emitAudit(ctx, auditEventSessionRefreshInvalid, false, subject, err, nil)
		return nil, err
	}

	subject.tenantID = sess.TenantID
	subject.userID = sess.UserID
	subject.role = sess.Role.String()
	e.metricInc(MetricSessionRefreshed)
	e.emitAudit(ctx, auditEventSessionRefreshed, true, subject, nil, nil)
	return descriptorFromSession(sess, false), nil
}

func publicSessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, session.ErrBackendUnavailable):
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		// Refused by the revalidator.
		return fmt.Errorf("%w: %w", ErrSessionNotFound, err)
	}
}

// Logout revokes a session. Unknown identifiers succeed; only a registry
// outage is reported.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.flows.Logout(ctx, sessionID); err != nil {
		err = publicSessionError(err)
		e.metricInc(MetricBackendError)
		e.logger.ErrorContext(ctx, "logout failed", "session_ref", sessionRef(sessionID), "error", err)
		e.emitAudit(ctx, auditEventLogout, false, auditSubject{sessionID: sessionID}, err, nil)
		return err
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, auditSubject{sessionID: sessionID}, nil, nil)
	return nil
}

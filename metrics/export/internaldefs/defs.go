package internaldefs

import (
	"github.com/MrEthical07/tipgate"
)

// CounterDef names one engine counter for every exporter.
type CounterDef struct {
	ID   tipgate.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   tipgate.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: tipgate.MetricLoginSuccess, Name: "tipgate_login_success_total", Help: "Successful staff logins."},
	{ID: tipgate.MetricLoginFailure, Name: "tipgate_login_failure_total", Help: "Failed staff logins, all causes."},
	{ID: tipgate.MetricReceiptLoginSuccess, Name: "tipgate_receipt_login_success_total", Help: "Successful whistleblower receipt logins."},
	{ID: tipgate.MetricReceiptLoginFailure, Name: "tipgate_receipt_login_failure_total", Help: "Failed whistleblower receipt logins, all causes."},
	{ID: tipgate.MetricThrottleDelayed, Name: "tipgate_throttle_delayed_total", Help: "Login answers that carried a throttle delay."},
	{ID: tipgate.MetricNetworkDenied, Name: "tipgate_network_denied_total", Help: "Logins refused because the role requires the anonymity network."},
	{ID: tipgate.MetricAccessLocationDenied, Name: "tipgate_access_location_denied_total", Help: "Logins refused by a tenant IP allow-list."},
	{ID: tipgate.MetricTenantForbidden, Name: "tipgate_tenant_forbidden_total", Help: "Logins refused by an inactive tenant."},
	{ID: tipgate.MetricConfigError, Name: "tipgate_config_error_total", Help: "Tenant or credential configuration faults found while serving logins."},
	{ID: tipgate.MetricBackendError, Name: "tipgate_backend_error_total", Help: "Store, registry or counter backend failures."},
	{ID: tipgate.MetricLoginCancelled, Name: "tipgate_login_cancelled_total", Help: "Logins abandoned by the client during the wait."},
	{ID: tipgate.MetricSessionCreated, Name: "tipgate_session_created_total", Help: "Created sessions."},
	{ID: tipgate.MetricSessionRefreshed, Name: "tipgate_session_refreshed_total", Help: "Renewed sessions."},
	{ID: tipgate.MetricSessionNotFound, Name: "tipgate_session_not_found_total", Help: "Refreshes of unknown, expired or revoked sessions."},
	{ID: tipgate.MetricLogout, Name: "tipgate_logout_total", Help: "Logout operations."},
}

var HistogramDefs = []HistogramDef{
	{ID: tipgate.MetricLoginLatency, Name: "tipgate_login_latency_seconds", Help: "Login answer time, throttle delay included."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.15, 0.25, 0.5, 1, 5, 15, 30}

// Series that do not come from the engine snapshot.
const (
	AuditDroppedName = "tipgate_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
	FailedLoginsName = "tipgate_failed_login_attempts"
	FailedLoginsHelp = "Global failed login count driving the throttle delay."
)

func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

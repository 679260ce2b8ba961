package internaldefs

import (
	"github.com/MrEthical07/authsession"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   authsession.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   authsession.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter of audit events lost to backpressure.
const AuditDroppedName = "authsession_audit_dropped_total"

var CounterDefs = []CounterDef{
	{ID: authsession.MetricLoginSuccess, Name: "authsession_login_success_total", Help: "Successful logins."},
	{ID: authsession.MetricLoginFailure, Name: "authsession_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: authsession.MetricLoginLocked, Name: "authsession_login_locked_total", Help: "Logins refused while the identifier was locked."},
	{ID: authsession.MetricAccountLocked, Name: "authsession_account_locked_total", Help: "Identifiers locked after too many failures."},
	{ID: authsession.MetricRegisterSuccess, Name: "authsession_register_success_total", Help: "Accounts created."},
	{ID: authsession.MetricRegisterDuplicate, Name: "authsession_register_duplicate_total", Help: "Registrations rejected as duplicate email."},
	{ID: authsession.MetricRefreshSuccess, Name: "authsession_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authsession.MetricRefreshFailure, Name: "authsession_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: authsession.MetricRefreshReuseDetected, Name: "authsession_refresh_reuse_detected_total", Help: "Revoked refresh secrets presented again."},
	{ID: authsession.MetricRateLimitHit, Name: "authsession_rate_limit_hit_total", Help: "Requests denied by the rate limiter."},
	{ID: authsession.MetricSessionCreated, Name: "authsession_session_created_total", Help: "Refresh sessions created at login."},
	{ID: authsession.MetricSessionRevoked, Name: "authsession_session_revoked_total", Help: "Refresh sessions revoked."},
	{ID: authsession.MetricLogout, Name: "authsession_logout_total", Help: "Single-session logouts."},
	{ID: authsession.MetricLogoutAll, Name: "authsession_logout_all_total", Help: "Logout-all operations."},
	{ID: authsession.MetricPasswordChangeSuccess, Name: "authsession_password_change_success_total", Help: "Successful password changes."},
	{ID: authsession.MetricPasswordChangeInvalidOld, Name: "authsession_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: authsession.MetricPasswordChangeReuseRejected, Name: "authsession_password_change_reuse_rejected_total", Help: "Password changes rejected for reuse."},
	{ID: authsession.MetricPasswordResetRequest, Name: "authsession_password_reset_request_total", Help: "Password reset requests."},
	{ID: authsession.MetricPasswordResetConfirmSuccess, Name: "authsession_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: authsession.MetricPasswordResetConfirmFailure, Name: "authsession_password_reset_confirm_failure_total", Help: "Rejected password reset confirmations."},
	{ID: authsession.MetricPasswordHashUpgraded, Name: "authsession_password_hash_upgraded_total", Help: "Password hashes rewritten with current parameters."},
	{ID: authsession.MetricValidateSuccess, Name: "authsession_validate_success_total", Help: "Access tokens accepted."},
	{ID: authsession.MetricValidateFailure, Name: "authsession_validate_failure_total", Help: "Access tokens rejected."},
	{ID: authsession.MetricStoreUnavailable, Name: "authsession_store_unavailable_total", Help: "Operations failed by a backend outage."},
	{ID: authsession.MetricSweepRemoved, Name: "authsession_sweep_removed_total", Help: "Expired entries removed by the sweeper."},
}

var HistogramDefs = []HistogramDef{
	{ID: authsession.MetricValidateLatency, Name: "authsession_validate_latency_seconds", Help: "Access-token validation latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds; the engine
// keeps one extra +Inf bucket.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf last, for exporters that
// cannot carry an le label.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the eight engine buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

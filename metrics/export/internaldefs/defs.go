package internaldefs

import (
	"github.com/MrEthical07/sessionauth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   sessionauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   sessionauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "sessionauth_audit_dropped_total"

// AuditDroppedHelp describes [AuditDroppedName].
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: sessionauth.MetricLoginSuccess, Name: "sessionauth_login_success_total", Help: "Successful logins, including first-login registrations."},
	{ID: sessionauth.MetricLoginFailure, Name: "sessionauth_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: sessionauth.MetricLoginRateLimited, Name: "sessionauth_login_rate_limited_total", Help: "Logins rejected by the failed-attempt throttle."},
	{ID: sessionauth.MetricUserRegistered, Name: "sessionauth_user_registered_total", Help: "Users created on first login."},
	{ID: sessionauth.MetricRegisterConflict, Name: "sessionauth_register_conflict_total", Help: "First logins that lost the registration race."},
	{ID: sessionauth.MetricPasswordUpgraded, Name: "sessionauth_password_upgraded_total", Help: "Password hashes rewritten with current parameters."},
	{ID: sessionauth.MetricTokenIssued, Name: "sessionauth_token_issued_total", Help: "Access tokens minted and stored."},
	{ID: sessionauth.MetricTokenReused, Name: "sessionauth_token_reused_total", Help: "Logins answered with the live token."},
	{ID: sessionauth.MetricClaimRaceLost, Name: "sessionauth_claim_race_lost_total", Help: "Minted tokens discarded because a concurrent login stored first."},
	{ID: sessionauth.MetricAuthenticateSuccess, Name: "sessionauth_authenticate_success_total", Help: "Bearer tokens admitted."},
	{ID: sessionauth.MetricTokenInvalid, Name: "sessionauth_token_invalid_total", Help: "Bearer tokens failing cryptographic validation."},
	{ID: sessionauth.MetricTokenNotActive, Name: "sessionauth_token_not_active_total", Help: "Valid bearer tokens absent from the revocation index."},
	{ID: sessionauth.MetricLogout, Name: "sessionauth_logout_total", Help: "Logout operations."},
	{ID: sessionauth.MetricRevokeUser, Name: "sessionauth_revoke_user_total", Help: "Administrative session revocations."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: sessionauth.MetricAuthenticateLatency, Name: "sessionauth_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramUpperBounds holds the finite bucket bounds in seconds, matching
// the engine's fixed buckets. The final engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling or
// truncating as needed.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

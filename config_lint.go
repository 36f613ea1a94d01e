package sessionauth

import (
	"strings"
	"time"
)

// LintSeverity ranks advisory configuration findings.
type LintSeverity uint8

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "info"
	case LintWarn:
		return "warn"
	case LintHigh:
		return "high"
	default:
		return "unknown"
	}
}

// LintWarning is one advisory finding. Lint findings never block Build.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the ordered set of findings returned by [Config.Lint].
type LintResult []LintWarning

// Codes returns the finding codes in order.
func (r LintResult) Codes() []string {
	codes := make([]string, 0, len(r))
	for _, w := range r {
		codes = append(codes, w.Code)
	}
	return codes
}

// AtLeast returns findings with severity >= min.
func (r LintResult) AtLeast(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// Lint reports settings that validate but are risky or unusual.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.JWT.Leeway > time.Minute {
		add("leeway_large", LintWarn, "JWT leeway above 1m lets expired tokens through for longer")
	}
	if c.JWT.AccessTTL > 2*time.Hour {
		add("access_ttl_long", LintWarn, "access tokens living longer than 2h widen the theft window")
	}
	if !c.JWT.RequireIAT {
		add("iat_optional", LintInfo, "tokens without iat are accepted")
	}
	if c.Security.MaxLoginAttempts == 0 {
		add("rate_limits_disabled", LintHigh, "login throttling is disabled; passwords can be brute forced")
	} else if !c.Security.EnableIPThrottle {
		add("ip_throttle_disabled", LintInfo, "only per-username throttling is active")
	}
	if c.Session.MinReuseTTL > 0 && c.Session.MinReuseTTL*10 > c.JWT.AccessTTL {
		add("reuse_floor_large", LintWarn, "MinReuseTTL is a large fraction of AccessTTL; tokens are replaced early")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "audit events are not recorded")
	} else if c.Audit.DropIfFull {
		add("audit_drop_if_full", LintInfo, "audit events are dropped under backpressure")
	}
	if !c.Password.UpgradeOnLogin {
		add("password_upgrade_disabled", LintInfo, "hashes produced with older parameters are never upgraded")
	}
	if strings.EqualFold(c.JWT.Issuer, c.JWT.Audience) {
		add("issuer_equals_audience", LintInfo, "issuer and audience are identical")
	}

	return ws
}

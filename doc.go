// Package sessionauth provides a login-or-register authentication core with
// HS256 bearer tokens, one live token per user, and a Redis-backed revocation
// gate.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// sessionauth is the public surface. It exposes [Engine], [Builder], [Config],
// the [CredentialStore] and [SessionCache] interfaces, and value types
// (LoginResponse, Principal, SessionInfo, MetricsSnapshot). Flow orchestration,
// login throttling and audit dispatch live under internal/ and are never
// exported. Credential store implementations live in userstore.
//
// # Token lifecycle
//
// Login returns the caller's live token while more than Session.MinReuseTTL of
// it remains; otherwise a new token is signed and claimed in one Lua script
// that writes the user record and the jti index with the same TTL. Concurrent
// first logins converge on one user record and one token. Authenticate admits
// a verified token only while its jti is present in the index, so Logout and
// RevokeUser take effect immediately.
//
// # What this package must NOT do
//
//   - Expose Redis clients or key layout in its public API.
//   - Admit a request when the revocation index cannot be read.
//   - Import any sub-package that re-imports sessionauth (no import cycles).
package sessionauth

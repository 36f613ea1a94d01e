// Package session provides Redis-backed storage for the single active session
// of each user and the jti existence index consulted on every request.
//
// # Key layout
//
// Each live session is projected under two keys that always share one TTL:
//
//	<prefix>:user:<userID>   HASH  token, jti, iat
//	<prefix>:token:<jti>     STRING userID (existence flag)
//
// Every write and delete that touches both keys runs as a single Lua script,
// so a session can never be observed with only one of its two keys.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Record] model. It does NOT
// sign or parse tokens or decide reuse versus reissue; those responsibilities belong
// to the Engine.
//
// # What this package must NOT do
//
//   - Import sessionauth or jwt (no upward imports).
//   - Extend a session TTL on read.
package session

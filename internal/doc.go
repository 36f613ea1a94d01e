// Package internal contains helper utilities that are private to sessionauth,
// most notably secure random session identifiers.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - flows — pure-function flow orchestrators for every Engine operation
//   - rate — Redis-backed failed-login throttle
//
// # What this package must NOT do
//
//   - Export types that appear in the public sessionauth API.
//   - Be imported by any package outside the sessionauth module.
package internal

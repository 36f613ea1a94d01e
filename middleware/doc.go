// Package middleware adapts a sessionauth.Engine to net/http.
//
// # Handlers
//
//   - [Guard] admits a request only when its bearer token passes
//     Engine.Authenticate and stores the resulting Principal in the context.
//   - [ClientIP] records the caller address for login throttling and audit.
//   - [RequestID] and [Logging] provide request correlation and structured
//     access logs through log/slog.
//   - [WriteError] renders engine errors as the JSON error body used by every
//     endpoint.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from Engine.Authenticate.
package middleware

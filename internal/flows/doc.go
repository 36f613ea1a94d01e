// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunAuthenticate, RunCreateAccessToken, etc.)
// accepts a typed dependency struct and returns results without side-effects
// beyond those dependencies. Flows are unit tested with stub dependencies and
// the Engine type stays thin.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session cache, credential store, JWT
// manager, rate limiter, audit dispatcher and metrics. They do NOT own any of
// these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import sessionauth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows

// Package rate provides the Redis-backed failed-login throttle used by the
// login flow.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key layout:
//   - <prefix>:rl:user:<username>  login per-user
//   - <prefix>:rl:ip:<ip>          login per-IP
//
// # What this package must NOT do
//
//   - Decide what counts as a failed attempt (the login flow does).
//   - Be imported outside the sessionauth module.
package rate

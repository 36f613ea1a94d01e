// Package jwt issues and verifies HS256 access tokens carrying the session
// identifier (jti) consulted by the revocation gate.
package jwt

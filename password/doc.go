// Package password implements password hashing and verification with PBKDF2-HMAC-SHA256.
//
// # Output format
//
// Hashes are encoded as four "$"-delimited fields:
//
//	pbkdf2_sha256$<iterations>$<base64 salt>$<base64 key>
//
// Verification always uses the parameters stored in the hash, so hashes produced
// under older defaults keep verifying after the defaults are raised. When the
// stored parameters are weaker than the current [Config], [Hasher.NeedsUpgrade]
// returns true so the caller can re-hash on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Credential lookup and
// registration are handled by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other sessionauth package.
//   - Log plaintext passwords or hash parameters at runtime.
package password

// Package userstore provides [sessionauth.CredentialStore] implementations.
//
//   - Memory: a mutex-guarded map for tests, demos and the load test.
//   - Postgres: a pgx pool backed table with a unique username index.
//
// Both report an unknown username as sessionauth.ErrUserNotFound and a taken
// username as an error wrapping sessionauth.ErrStoreConflict. A taken id is
// the distinct [ErrDuplicateID]. Usernames are
// compared exactly; no case folding or trimming is applied.
package userstore

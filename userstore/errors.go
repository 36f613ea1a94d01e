package userstore

import "errors"

// ErrDuplicateID is returned by Create when the user id is already taken.
// It does not wrap sessionauth.ErrStoreConflict, which is reserved for
// usernames.
var ErrDuplicateID = errors.New("user id already exists")

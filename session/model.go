package session

import "time"

// Record is one user's active session as stored in Redis.
//
// TTL is the remaining lifetime reported by the store at read time; it is ignored on write.
type Record struct {
	UserID   string
	Token    string
	JTI      string
	IssuedAt int64
	TTL      time.Duration
}

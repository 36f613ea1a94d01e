package rate

import "errors"

var (
	// ErrRateLimited is returned when a login attempt budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable is returned when a limiter counter cannot be read or written.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

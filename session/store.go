package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when a Redis command fails for reasons other than key absence.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when no live session exists for the requested key.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionCorrupt is returned when a stored session hash is missing required fields.
var ErrSessionCorrupt = errors.New("session corrupt")

// DefaultMinReuseTTL is the lifetime below which an existing session is treated as expired.
const DefaultMinReuseTTL = time.Second

const (
	lookupStatusMissing int64 = 0
	lookupStatusLive    int64 = 1

	claimStatusExisting int64 = 0
	claimStatusCreated  int64 = 1
)

// lookupSessionScript returns the live session for KEYS[1], requiring that the
// paired jti key still exists and that more than ARGV[2] ms remain.
const lookupSessionScript = `
local pttl = redis.call("PTTL", KEYS[1])
if pttl <= tonumber(ARGV[2]) then
  return {0}
end
local cur = redis.call("HMGET", KEYS[1], "token", "jti", "iat")
if not cur[1] or not cur[2] then
  return {0}
end
if redis.call("EXISTS", ARGV[1] .. cur[2]) == 0 then
  return {0}
end
return {1, cur[1], cur[2], cur[3] or "0", pttl}
`

var lookupSessionLua = redis.NewScript(lookupSessionScript)

// claimSessionScript writes the user hash and the jti key with one TTL unless a
// live session already owns the user key, in which case that session is returned.
// Stale or half-present pairs are removed before the new pair is written.
const claimSessionScript = `
local user_key = KEYS[1]
local token_key = KEYS[2]
local token = ARGV[1]
local jti = ARGV[2]
local iat = ARGV[3]
local ttl_ms = ARGV[4]
local min_ms = tonumber(ARGV[5])
local token_prefix = ARGV[6]
local user_id = ARGV[7]

local pttl = redis.call("PTTL", user_key)
local cur = redis.call("HMGET", user_key, "token", "jti", "iat")

if pttl > min_ms and cur[1] and cur[2] then
  if redis.call("EXISTS", token_prefix .. cur[2]) == 1 then
    return {0, cur[1], cur[2], cur[3] or "0", pttl}
  end
end

if cur[2] then
  redis.call("DEL", token_prefix .. cur[2])
end
redis.call("DEL", user_key)

redis.call("HSET", user_key, "token", token, "jti", jti, "iat", iat)
redis.call("PEXPIRE", user_key, ttl_ms)
redis.call("SET", token_key, user_id, "PX", ttl_ms)

return {1, token, jti, iat, tonumber(ttl_ms)}
`

var claimSessionLua = redis.NewScript(claimSessionScript)

// revokeUserScript deletes the user hash and the jti key it points to.
const revokeUserScript = `
local jti = redis.call("HGET", KEYS[1], "jti")
local removed = redis.call("DEL", KEYS[1])
if jti then
  removed = removed + redis.call("DEL", ARGV[1] .. jti)
end
return removed
`

var revokeUserLua = redis.NewScript(revokeUserScript)

// revokeTokenScript deletes the jti key and, when the owning user hash still
// points at the same jti, the user hash as well.
const revokeTokenScript = `
local user_id = redis.call("GET", KEYS[1])
if not user_id then
  return 0
end
redis.call("DEL", KEYS[1])
local user_key = ARGV[1] .. user_id
if redis.call("HGET", user_key, "jti") == ARGV[2] then
  redis.call("DEL", user_key)
end
return 1
`

var revokeTokenLua = redis.NewScript(revokeTokenScript)

// Store is a Redis-backed session store holding at most one live session per user.
type Store struct {
	redis       redis.UniversalClient
	prefix      string
	minReuseTTL time.Duration
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace; minReuseTTL is the remaining lifetime
// at or below which a stored session is considered expired (0 selects
// DefaultMinReuseTTL).
func NewStore(redis redis.UniversalClient, prefix string, minReuseTTL time.Duration) *Store {
	if minReuseTTL <= 0 {
		minReuseTTL = DefaultMinReuseTTL
	}
	return &Store{
		redis:       redis,
		prefix:      prefix,
		minReuseTTL: minReuseTTL,
	}
}

func (s *Store) userKey(userID string) string {
	return s.userPrefix() + userID
}

func (s *Store) tokenKey(jti string) string {
	return s.tokenPrefix() + jti
}

func (s *Store) userPrefix() string {
	return s.prefix + ":user:"
}

func (s *Store) tokenPrefix() string {
	return s.prefix + ":token:"
}

// Get returns the live session for userID without mutating any state.
// It returns ErrSessionNotFound when the session is absent, expired, or within
// minReuseTTL of expiry.
//
//	Performance: 1 EVALSHA (PTTL + HMGET + EXISTS).
func (s *Store) Get(ctx context.Context, userID string) (*Record, error) {
	res, err := lookupSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.userKey(userID)},
		s.tokenPrefix(),
		s.minReuseTTL.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	status, rec, err := decodeScriptRecord(res)
	if err != nil {
		return nil, err
	}
	if status != lookupStatusLive {
		return nil, ErrSessionNotFound
	}
	rec.UserID = userID
	return rec, nil
}

// Claim atomically stores rec for rec.UserID with the given TTL unless another
// live session already exists. It returns the stored session (the caller's or
// the existing one) and whether rec was written.
//
//	Performance: 1 EVALSHA.
func (s *Store) Claim(ctx context.Context, rec *Record, ttl time.Duration) (*Record, bool, error) {
	if rec == nil || rec.UserID == "" || rec.JTI == "" || rec.Token == "" {
		return nil, false, errors.New("session record requires user id, jti and token")
	}
	if ttl <= s.minReuseTTL {
		return nil, false, fmt.Errorf("session ttl must exceed %s", s.minReuseTTL)
	}

	res, err := claimSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.userKey(rec.UserID), s.tokenKey(rec.JTI)},
		rec.Token,
		rec.JTI,
		rec.IssuedAt,
		ttl.Milliseconds(),
		s.minReuseTTL.Milliseconds(),
		s.tokenPrefix(),
		rec.UserID,
	).Slice()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	status, stored, err := decodeScriptRecord(res)
	if err != nil {
		return nil, false, err
	}
	stored.UserID = rec.UserID
	return stored, status == claimStatusCreated, nil
}

// Active reports whether jti belongs to a live session.
//
//	Performance: 1 Redis EXISTS.
func (s *Store) Active(ctx context.Context, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.tokenKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// Revoke removes the session of userID together with its jti key.
// It is idempotent and reports whether anything was removed.
func (s *Store) Revoke(ctx context.Context, userID string) (bool, error) {
	removed, err := revokeUserLua.Run(ctx, s.redis, []string{s.userKey(userID)}, s.tokenPrefix()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return removed > 0, nil
}

// RevokeToken removes the session identified by jti. A newer session of the
// same user is left untouched.
func (s *Store) RevokeToken(ctx context.Context, jti string) (bool, error) {
	removed, err := revokeTokenLua.Run(ctx, s.redis, []string{s.tokenKey(jti)}, s.userPrefix(), jti).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return removed == 1, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func decodeScriptRecord(res []interface{}) (int64, *Record, error) {
	if len(res) == 0 {
		return 0, nil, ErrSessionCorrupt
	}
	status, ok := res[0].(int64)
	if !ok {
		return 0, nil, ErrSessionCorrupt
	}
	if len(res) == 1 {
		return status, nil, nil
	}
	if len(res) != 5 {
		return 0, nil, ErrSessionCorrupt
	}

	token, _ := res[1].(string)
	jti, _ := res[2].(string)
	if token == "" || jti == "" {
		return 0, nil, ErrSessionCorrupt
	}

	var iat int64
	switch v := res[3].(type) {
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, nil, ErrSessionCorrupt
		}
		iat = parsed
	case int64:
		iat = v
	}

	pttl, ok := res[4].(int64)
	if !ok {
		return 0, nil, ErrSessionCorrupt
	}

	return status, &Record{
		Token:    token,
		JTI:      jti,
		IssuedAt: iat,
		TTL:      time.Duration(pttl) * time.Millisecond,
	}, nil
}

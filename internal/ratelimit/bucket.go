package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Tokens are stored as integer milli-tokens so the script never returns a
// fraction (redis truncates Lua numbers). The reply is {allowed, milli_tokens, retry_ms}.
const takeTokenScript = `
local capacity = tonumber(ARGV[2]) * 1000
local rate = tonumber(ARGV[1])
local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "mt", "at")
local mt = tonumber(state[1]) or capacity
local at = tonumber(state[2]) or now
if now > at then
  mt = math.min(capacity, mt + math.floor((now - at) * rate))
end

local allowed = 0
local retry = 0
if mt >= 1000 then
  allowed = 1
  mt = mt - 1000
else
  retry = math.ceil((1000 - mt) / rate)
end

redis.call("HSET", KEYS[1], "mt", mt, "at", now)
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return {allowed, mt, retry}
`

var (
	ErrLimiterNotConfigured = errors.New("rate limiter not configured")
	ErrInvalidBucket        = errors.New("rate limiter bucket is invalid")
)

// Bucket refills at Rate tokens per second up to Burst.
type Bucket struct {
	Rate  float64
	Burst int
}

func (b Bucket) valid() bool {
	return b.Rate > 0 && b.Burst > 0
}

// idleTTL keeps an untouched bucket around for twice its full refill time.
func (b Bucket) idleTTL() time.Duration {
	if !b.valid() {
		return time.Second
	}
	seconds := math.Max(1, math.Ceil(2*float64(b.Burst)/b.Rate))
	return time.Duration(seconds) * time.Second
}

// Decision is the outcome of taking one token.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type bucketStore struct {
	client redis.Scripter
	script *redis.Script
}

func newBucketStore(client redis.Scripter) *bucketStore {
	if client == nil {
		return nil
	}
	return &bucketStore{client: client, script: redis.NewScript(takeTokenScript)}
}

func (s *bucketStore) take(ctx context.Context, key string, b Bucket) (*Decision, error) {
	if s == nil {
		return nil, ErrLimiterNotConfigured
	}
	if key == "" || !b.valid() {
		return nil, ErrInvalidBucket
	}
	reply, err := s.script.Run(ctx, s.client, []string{key}, b.Rate, b.Burst, b.idleTTL().Milliseconds()).Int64Slice()
	if err != nil {
		return nil, err
	}
	return decodeDecision(reply, b)
}

func decodeDecision(reply []int64, b Bucket) (*Decision, error) {
	if len(reply) != 3 {
		return nil, fmt.Errorf("rate limit script: want 3 values, got %d", len(reply))
	}
	return &Decision{
		Allowed:    reply[0] == 1,
		Limit:      b.Burst,
		Remaining:  int(reply[1] / 1000),
		RetryAfter: time.Duration(reply[2]) * time.Millisecond,
	}, nil
}

package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cragline/service-booking/internal/platform/config"
	"github.com/cragline/service-booking/internal/platform/response"
)

// tokenBucket refills in whole intervals and returns {allowed, remaining, retry_after_ms}.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
    tokens = capacity
    last_refill = now_ms
end

if interval_ms > 0 and refill_tokens > 0 then
    local elapsed = math.max(0, now_ms - last_refill)
    local intervals = math.floor(elapsed / interval_ms)
    if intervals > 0 then
        tokens = math.min(capacity, tokens + (intervals * refill_tokens))
        last_refill = last_refill + (intervals * interval_ms)
    end
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
    allowed = 1
    tokens = tokens - 1
else
    retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)

return { allowed, tokens, retry_after_ms }
`)

// RateLimiter limits requests per caller. It uses a shared Redis token bucket
// when a client is configured and falls back to per-process limiters when
// Redis is absent or failing.
type RateLimiter struct {
	cfg    config.RateLimitConfig
	rdb    *redis.Client
	logger *zap.Logger

	mu    sync.Mutex
	local map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter. rdb may be nil.
func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		cfg:    cfg,
		rdb:    rdb,
		logger: logger,
		local:  make(map[string]*visitor),
	}
}

// Middleware returns the gin handler.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	if !rl.cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		key := rl.key(c)
		allowed, remaining, retryAfter := rl.allow(c, key)

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Capacity))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if !allowed {
			secs := int(math.Ceil(retryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(secs))
			response.Fail(c, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded",
				map[string]interface{}{"retry_after": secs})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(c *gin.Context, key string) (bool, int64, time.Duration) {
	if rl.rdb != nil {
		vals, err := tokenBucket.Run(c.Request.Context(), rl.rdb, []string{key},
			time.Now().UnixMilli(),
			rl.cfg.Capacity,
			rl.cfg.RefillTokens,
			rl.cfg.RefillInterval.Milliseconds(),
			int64(rl.cfg.TTL/time.Second),
		).Int64Slice()
		if err == nil && len(vals) == 3 {
			return vals[0] == 1, vals[1], time.Duration(vals[2]) * time.Millisecond
		}
		rl.logger.Warn("redis rate limiter unavailable, using local limiter",
			zap.String("key", key),
			zap.Error(err),
		)
	}

	lim := rl.localLimiter(key)
	if lim.Allow() {
		return true, int64(lim.Tokens()), 0
	}
	return false, 0, rl.cfg.RefillInterval
}

func (rl *RateLimiter) localLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for k, v := range rl.local {
		if now.Sub(v.lastSeen) > rl.cfg.TTL {
			delete(rl.local, k)
		}
	}

	v, ok := rl.local[key]
	if !ok {
		every := rate.Every(rl.cfg.RefillInterval / time.Duration(rl.cfg.RefillTokens))
		v = &visitor{limiter: rate.NewLimiter(every, rl.cfg.Capacity)}
		rl.local[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (rl *RateLimiter) key(c *gin.Context) string {
	if id, ok := GetUserID(c); ok {
		return fmt.Sprintf("%s:user:%s", rl.cfg.Prefix, id)
	}
	return fmt.Sprintf("%s:ip:%s", rl.cfg.Prefix, c.ClientIP())
}

package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dealhound/dealhound/pkg/logging"
)

// Limits holds per-tier thresholds.
type Limits struct {
	GuestPerMinute int
	GuestPerDay    int
	AuthPerMinute  int
	AuthPerDay     int
}

// DefaultLimits returns the product defaults.
func DefaultLimits() Limits {
	return Limits{
		GuestPerMinute: 10,
		GuestPerDay:    2,
		AuthPerMinute:  30,
		AuthPerDay:     200,
	}
}

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Limited    bool
	Message    string
	RetryAfter time.Duration
}

// GuestKey and UserKey build limiter identities. Guests are keyed by IP,
// authenticated users by their user ID, each tier with its own thresholds.
func GuestKey(ip string) string    { return "ip:" + ip }
func UserKey(userID string) string { return "u:" + userID }

type memCounter struct {
	count   int
	resetAt time.Time
}

// Limiter enforces minute and day query quotas. Redis counters are
// authoritative; if Redis is absent or failing it degrades to in-process
// counters, which are best-effort only in multi-instance deployments.
type Limiter struct {
	rdb    *redis.Client
	limits Limits
	logger *logging.Logger
	now    func() time.Time

	mu       sync.Mutex
	counters map[string]*memCounter
}

// NewLimiter builds a limiter. rdb may be nil.
func NewLimiter(rdb *redis.Client, limits Limits, logger *logging.Logger) *Limiter {
	if logger == nil {
		logger = logging.Default()
	}
	defaults := DefaultLimits()
	if limits.GuestPerMinute <= 0 {
		limits.GuestPerMinute = defaults.GuestPerMinute
	}
	if limits.GuestPerDay <= 0 {
		limits.GuestPerDay = defaults.GuestPerDay
	}
	if limits.AuthPerMinute <= 0 {
		limits.AuthPerMinute = defaults.AuthPerMinute
	}
	if limits.AuthPerDay <= 0 {
		limits.AuthPerDay = defaults.AuthPerDay
	}
	return &Limiter{
		rdb:      rdb,
		limits:   limits,
		logger:   logger,
		now:      time.Now,
		counters: make(map[string]*memCounter),
	}
}

// Check performs the quota check for one chat turn. Exactly one minute
// increment and one day increment happen per call regardless of outcome;
// callers must not increment again after a successful turn. Because the
// increments have already landed, the comparison subtracts one from each
// count before testing the threshold.
func (l *Limiter) Check(ctx context.Context, key string, authenticated bool) Decision {
	perMinute := l.limits.GuestPerMinute
	perDay := l.limits.GuestPerDay
	if authenticated {
		perMinute = l.limits.AuthPerMinute
		perDay = l.limits.AuthPerDay
	}

	minuteCount, minuteReset := l.incrementAndGet(ctx, "ratelimit:minute:"+key, time.Minute)
	dayCount, dayReset := l.incrementAndGet(ctx, "ratelimit:day:"+key, 24*time.Hour)

	if minuteCount-1 >= perMinute {
		retryAfter := time.Until(minuteReset)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Decision{
			Limited:    true,
			Message:    fmt.Sprintf("You're sending messages too quickly. Please wait %d seconds and try again.", int(retryAfter.Seconds())+1),
			RetryAfter: retryAfter,
		}
	}
	if dayCount-1 >= perDay {
		retryAfter := time.Until(dayReset)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Decision{
			Limited:    true,
			Message:    "You've reached today's question limit. Come back tomorrow, or sign in for a higher limit.",
			RetryAfter: retryAfter,
		}
	}
	return Decision{}
}

// incrementAndGet increments a counter, setting the window expiry only on the
// first increment, and returns the new count with the window reset time.
func (l *Limiter) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time) {
	if l.rdb != nil {
		count, err := l.rdb.Incr(ctx, key).Result()
		if err == nil {
			if count == 1 {
				l.rdb.Expire(ctx, key, window)
			}
			ttl, err := l.rdb.TTL(ctx, key).Result()
			if err != nil || ttl < 0 {
				ttl = window
			}
			return int(count), l.now().Add(ttl)
		}
		l.logger.Warn("rate limit counter unavailable, using in-memory fallback", "error", err)
	}
	return l.incrementMemory(key, window)
}

func (l *Limiter) incrementMemory(key string, window time.Duration) (int, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[key]
	if !ok || now.After(c.resetAt) {
		c = &memCounter{resetAt: now.Add(window)}
		l.counters[key] = c
	}
	c.count++
	return c.count, c.resetAt
}

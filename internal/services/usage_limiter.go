package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"aiplatform/internal/models"
)

// LimitDecision is the outcome of a usage check
type LimitDecision struct {
	Allowed  bool  // false only when enforcement is on and the limit is hit
	Exceeded bool  // limit hit, regardless of enforcement
	Count    int64 // messages counted today, including this one
	Limit    int64 // daily allowance for the tier
}

// UsageLimiter enforces per-tier daily message allowances plus a short
// per-user burst limiter. Daily counters live in Redis when available
// and fall back to counting persisted messages otherwise. With
// enforcement off, exceeded limits are logged but requests pass.
type UsageLimiter struct {
	rdb      *redis.Client
	sessions *SessionService
	limits   map[string]int64
	enforce  bool

	mu    sync.Mutex
	burst map[int64]*rate.Limiter
}

// NewUsageLimiter creates a limiter. rdb may be nil.
func NewUsageLimiter(rdb *redis.Client, sessions *SessionService, free, premium, admin int, enforce bool) *UsageLimiter {
	return &UsageLimiter{
		rdb:      rdb,
		sessions: sessions,
		limits: map[string]int64{
			models.TierFree:    int64(free),
			models.TierPremium: int64(premium),
			models.RoleAdmin:   int64(admin),
		},
		enforce: enforce,
		burst:   make(map[int64]*rate.Limiter),
	}
}

// LimitFor returns the daily allowance for a tier (admins pass their
// role as tier).
func (l *UsageLimiter) LimitFor(tier string) int64 {
	if limit, ok := l.limits[tier]; ok {
		return limit
	}
	return l.limits[models.TierFree]
}

// Check records one message against the user's daily allowance and
// returns the decision. The count always advances so usage stats stay
// accurate even in soft mode.
func (l *UsageLimiter) Check(ctx context.Context, userID int64, tier string) (LimitDecision, error) {
	limit := l.LimitFor(tier)

	if !l.burstLimiter(userID).Allow() {
		return LimitDecision{Allowed: !l.enforce, Exceeded: true, Limit: limit}, nil
	}

	count, err := l.countToday(ctx, userID)
	if err != nil {
		return LimitDecision{}, err
	}

	d := LimitDecision{Count: count, Limit: limit}
	d.Exceeded = count > limit
	d.Allowed = !d.Exceeded || !l.enforce

	if d.Exceeded {
		log.Printf("⚠️  User %d over daily limit (%d/%d, tier=%s, enforce=%v)",
			userID, count, limit, tier, l.enforce)
	}
	return d, nil
}

// Usage returns the current daily count without incrementing
func (l *UsageLimiter) Usage(ctx context.Context, userID int64) (int64, error) {
	if l.rdb != nil {
		n, err := l.rdb.Get(ctx, dailyKey(userID)).Int64()
		if err == nil {
			return n, nil
		}
		if err != redis.Nil {
			log.Printf("⚠️  Redis usage read failed, falling back to database: %v", err)
		} else {
			return 0, nil
		}
	}
	return l.sessions.CountMessagesToday(userID)
}

func (l *UsageLimiter) countToday(ctx context.Context, userID int64) (int64, error) {
	if l.rdb != nil {
		key := dailyKey(userID)
		n, err := l.rdb.Incr(ctx, key).Result()
		if err == nil {
			if n == 1 {
				l.rdb.ExpireAt(ctx, key, nextMidnightUTC())
			}
			return n, nil
		}
		log.Printf("⚠️  Redis counter failed, falling back to database: %v", err)
	}

	// DB fallback counts persisted messages; +1 for the in-flight one
	n, err := l.sessions.CountMessagesToday(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return n + 1, nil
}

// burstLimiter smooths request bursts: 1 request/sec sustained, burst
// of 5, per user.
func (l *UsageLimiter) burstLimiter(userID int64) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.burst[userID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(1), 5)
		l.burst[userID] = lim
	}
	return lim
}

func dailyKey(userID int64) string {
	return fmt.Sprintf("usage:%d:%s", userID, time.Now().UTC().Format("2006-01-02"))
}

func nextMidnightUTC() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
}

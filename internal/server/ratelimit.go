package server

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter gives every client a per-minute and a per-hour token bucket
// plus a daily request quota. A zero limit disables that check.
type RateLimiter struct {
	mu  sync.Mutex
	now func() time.Time

	perMinute int
	perHour   int
	perDay    int

	clients map[string]*clientUsage
}

type clientUsage struct {
	minute   *rate.Limiter
	hour     *rate.Limiter
	today    int
	day      time.Time
	lastSeen time.Time
}

// Usage is a snapshot of one client's consumption.
type Usage struct {
	MinuteTokens float64
	HourTokens   float64
	Today        int
	LastSeen     time.Time
}

// NewRateLimiter creates a limiter allowing perMinute and perHour requests
// in bursts and perDay requests per calendar day.
func NewRateLimiter(perMinute, perHour, perDay int) *RateLimiter {
	return &RateLimiter{
		perMinute: perMinute,
		perHour:   perHour,
		perDay:    perDay,
		clients:   make(map[string]*clientUsage),
		now:       time.Now,
	}
}

// SetClock replaces the time source.
func (rl *RateLimiter) SetClock(now func() time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.now = now
}

// Allow admits one request from clientID or returns a *RateLimitError or
// *QuotaExceededError. A rejected request consumes nothing.
func (rl *RateLimiter) Allow(clientID string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c := rl.client(clientID, now)
	if !sameDay(now, c.day) {
		c.today, c.day = 0, startOfDay(now)
	}
	if rl.perDay > 0 && c.today >= rl.perDay {
		return &QuotaExceededError{
			Type:   "requests",
			Limit:  rl.perDay,
			Used:   c.today,
			Resets: c.day.AddDate(0, 0, 1),
		}
	}

	buckets := []struct {
		kind  string
		limit int
		lim   *rate.Limiter
	}{
		{"minute", rl.perMinute, c.minute},
		{"hour", rl.perHour, c.hour},
	}
	held := make([]*rate.Reservation, 0, len(buckets))
	for _, b := range buckets {
		if b.lim == nil {
			continue
		}
		r := b.lim.ReserveN(now, 1)
		if delay := r.DelayFrom(now); !r.OK() || delay > 0 {
			r.CancelAt(now)
			for _, h := range held {
				h.CancelAt(now)
			}
			return &RateLimitError{Type: b.kind, Limit: b.limit, RetryAfter: delay}
		}
		held = append(held, r)
	}

	c.today++
	c.lastSeen = now
	return nil
}

func (rl *RateLimiter) client(id string, now time.Time) *clientUsage {
	c, ok := rl.clients[id]
	if ok {
		return c
	}
	c = &clientUsage{day: startOfDay(now), lastSeen: now}
	if rl.perMinute > 0 {
		c.minute = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.perMinute)), rl.perMinute)
	}
	if rl.perHour > 0 {
		c.hour = rate.NewLimiter(rate.Every(time.Hour/time.Duration(rl.perHour)), rl.perHour)
	}
	rl.clients[id] = c
	return c
}

// Usage returns the current consumption of clientID. Unknown clients
// report a zero Usage.
func (rl *RateLimiter) Usage(clientID string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[clientID]
	if !ok {
		return Usage{}
	}
	now := rl.now()
	u := Usage{Today: c.today, LastSeen: c.lastSeen}
	if c.minute != nil {
		u.MinuteTokens = c.minute.TokensAt(now)
	}
	if c.hour != nil {
		u.HourTokens = c.hour.TokensAt(now)
	}
	return u
}

// Prune forgets clients idle for an hour whose quota day has ended.
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	n := 0
	for id, c := range rl.clients {
		if now.Sub(c.lastSeen) >= time.Hour && !sameDay(now, c.day) {
			delete(rl.clients, id)
			n++
		}
	}
	return n
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string        // "minute" or "hour"
	Limit      int           // the limit that was exceeded
	RetryAfter time.Duration // how long to wait before retrying
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError represents an exhausted daily quota.
type QuotaExceededError struct {
	Type   string
	Limit  int
	Used   int
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}

package services

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterPurgeThreshold = 1024

type tableLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// TableRateLimiter caps session creation per table with a token bucket of
// `events` permits refilled evenly across `window`.
type TableRateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	window   time.Duration
	limiters map[int]*tableLimiter
	now      func() time.Time
}

func NewTableRateLimiter(events int, window time.Duration) *TableRateLimiter {
	return &TableRateLimiter{
		limit:    rate.Every(window / time.Duration(events)),
		burst:    events,
		window:   window,
		limiters: make(map[int]*tableLimiter),
		now:      time.Now,
	}
}

// Allow consumes a permit for table. It returns zero when the request may
// proceed, otherwise how long the caller should wait before retrying.
func (l *TableRateLimiter) Allow(table int) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	tl, ok := l.limiters[table]
	if !ok {
		if len(l.limiters) >= limiterPurgeThreshold {
			l.purge(now)
		}
		tl = &tableLimiter{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[table] = tl
	}
	tl.lastSeen = now

	r := tl.lim.ReserveN(now, 1)
	if !r.OK() {
		return l.window
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return delay
	}
	return 0
}

func (l *TableRateLimiter) purge(now time.Time) {
	for table, tl := range l.limiters {
		if now.Sub(tl.lastSeen) > l.window {
			delete(l.limiters, table)
		}
	}
}

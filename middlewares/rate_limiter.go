package middlewares

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/valtrilabs/cafe-backend/utils"
	"golang.org/x/time/rate"
)

// RateLimiter is a per-client-IP token bucket.
type RateLimiter struct {
	limit rate.Limit
	burst int
	ips   map[string]*rate.Limiter
	mu    sync.Mutex
}

// NewRateLimiter allows events requests per interval from each IP.
func NewRateLimiter(events int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		limit: rate.Every(interval / time.Duration(events)),
		burst: events,
		ips:   make(map[string]*rate.Limiter),
	}
}

// NewStrictRateLimiter is meant for login: 5 attempts per minute per IP.
func NewStrictRateLimiter() gin.HandlerFunc {
	return NewRateLimiter(5, time.Minute).RateLimit()
}

func (rl *RateLimiter) limiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.ips[ip]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.ips[ip] = l
	}
	return l
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()
		r := rl.limiter(c.ClientIP()).ReserveN(now, 1)
		if delay := r.DelayFrom(now); !r.OK() || delay > 0 {
			r.CancelAt(now)
			seconds := int(math.Ceil(delay.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
			utils.RespondErrorBody(c, http.StatusTooManyRequests, "Too many requests", utils.ErrorBody{
				Kind:              "rate_limited",
				Reason:            "rate_limited",
				Action:            "retry_later",
				RetryAfterSeconds: seconds,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/r2clabs/bulkstudy/internal/api/response"
	"golang.org/x/time/rate"
)

const defaultRequestsPerMinute = 60

// RateLimit applies a token bucket per client IP.
type RateLimit struct {
	requestsPerMin int
	burst          int

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	lastCleanup time.Time
}

// NewRateLimit creates a new RateLimit middleware. requestsPerMin <= 0 uses
// the default of 60.
func NewRateLimit(requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	burst := requestsPerMin / 6
	if burst < 1 {
		burst = 1
	}
	return &RateLimit{
		requestsPerMin: requestsPerMin,
		burst:          burst,
		limiters:       make(map[string]*rate.Limiter),
		lastCleanup:    time.Now(),
	}
}

// Limit rejects requests beyond the client's budget with 429.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := rl.limiter(clientIP(r))

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		if !limiter.Allow() {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", "60")
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}
		remaining := int(limiter.Tokens())
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimit) limiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Forget idle clients once an hour.
	if time.Since(rl.lastCleanup) > time.Hour {
		rl.limiters = make(map[string]*rate.Limiter)
		rl.lastCleanup = time.Now()
	}

	l, ok := rl.limiters[ip]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(rl.requestsPerMin)/60), rl.burst)
		rl.limiters[ip] = l
	}
	return l
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

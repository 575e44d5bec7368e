package auth

import (
	"net/http"
	"strconv"
	"time"

	"artmarket-api/internal/kv"
	"artmarket-api/internal/observability"
)

// LoginRateLimiter throttles credential endpoints per client IP with a
// fixed window on the key/value store. It fails open: a store outage must
// not take logins down with it.
type LoginRateLimiter struct {
	store   kv.Store
	logger  *observability.Logger
	maxHits int64
	window  time.Duration
}

func NewLoginRateLimiter(store kv.Store, logger *observability.Logger, maxHits int, window time.Duration) *LoginRateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &LoginRateLimiter{
		store:   store,
		logger:  logger,
		maxHits: int64(maxHits),
		window:  window,
	}
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := observability.ClientIP(r)

		hits, err := l.store.Incr(r.Context(), "login_rate:"+ip, l.window)
		if err != nil {
			l.logger.Warn("login_rate_limit_unavailable", map[string]any{"error": err.Error()})
			next.ServeHTTP(w, r)
			return
		}

		if hits > l.maxHits {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

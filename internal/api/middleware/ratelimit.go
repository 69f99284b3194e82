package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures per-client rate limiting.
type RateLimitConfig struct {
	// Rate is the number of requests allowed per second per client IP.
	Rate rate.Limit
	// Burst is the maximum burst size per client IP.
	Burst int
	// CleanupInterval is how often idle clients are evicted.
	CleanupInterval time.Duration
	// MaxAge is how long an idle client's limiter is kept.
	MaxAge time.Duration
}

// NewRateLimitConfig returns a config allowing perSecond requests per client
// with a burst of twice that, rounded up.
func NewRateLimitConfig(perSecond float64) RateLimitConfig {
	burst := int(math.Ceil(perSecond * 2))
	if burst < 1 {
		burst = 1
	}
	return RateLimitConfig{
		Rate:            rate.Limit(perSecond),
		Burst:           burst,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	cfg     RateLimitConfig
	stop    chan struct{}
	once    sync.Once
}

// NewIPRateLimiter creates a limiter and starts its eviction loop. Call Stop
// to end the loop.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	rl := &IPRateLimiter{
		clients: make(map[string]*clientLimiter),
		cfg:     cfg,
		stop:    make(chan struct{}),
	}
	go rl.evictLoop()
	return rl
}

// Allow reports whether a request from ip may proceed now.
func (rl *IPRateLimiter) Allow(ip string) bool {
	return rl.limiterFor(ip).Allow()
}

// retryAfter reports how long the client at ip would wait for its next
// token, without consuming it.
func (rl *IPRateLimiter) retryAfter(ip string) time.Duration {
	r := rl.limiterFor(ip).Reserve()
	defer r.Cancel()
	if !r.OK() {
		return time.Second
	}
	return r.Delay()
}

func (rl *IPRateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	c, ok := rl.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.cfg.Rate, rl.cfg.Burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = time.Now()
	return c.limiter
}

// Len returns the number of tracked clients.
func (rl *IPRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Stop ends the eviction loop. It is safe to call more than once.
func (rl *IPRateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *IPRateLimiter) evictLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evict()
		case <-rl.stop:
			return
		}
	}
}

// evict drops clients idle for longer than MaxAge.
func (rl *IPRateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.cfg.MaxAge)
	removed := 0
	for ip, c := range rl.clients {
		if !c.lastSeen.After(cutoff) {
			delete(rl.clients, ip)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("rate limiter eviction", "removed", removed, "remaining", len(rl.clients))
	}
}

// RateLimit returns middleware that answers 429 with a Retry-After header
// once a client exceeds its budget.
func RateLimit(limiter *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if !limiter.Allow(ip) {
				wait := limiter.retryAfter(ip)
				secs := int(math.Ceil(wait.Seconds()))
				if secs < 1 {
					secs = 1
				}
				slog.Warn("rate limit exceeded", "ip", ip, "method", r.Method, "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the request's remote address without its port. chi's
// RealIP middleware should run first when the server sits behind a proxy.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

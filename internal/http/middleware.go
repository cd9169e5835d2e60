package http

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	applog "github.com/tazhibayda/authcore/internal/log"
	"github.com/tazhibayda/authcore/internal/metrics"
	"github.com/tazhibayda/authcore/internal/queue"
	"github.com/tazhibayda/authcore/internal/repo"
	"go.uber.org/zap"
)

const (
	requestIDHeader = "X-Request-ID"
	accessTokenKey  = "access_token"
)

// RequestID propagates or mints X-Request-ID and stores it in the request
// context for logs and published events.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(queue.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func AccessLog(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		lg := applog.WithDD(c.Request.Context(), base)
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", ClientIP(c)),
		}
		switch {
		case c.Writer.Status() >= 500:
			lg.Error("http", fields...)
		case c.Writer.Status() >= 400:
			lg.Warn("http", fields...)
		default:
			lg.Info("http", fields...)
		}
	}
}

func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.InFlight.Inc()
		defer metrics.InFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.ReqDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// Limiter decides whether one more hit for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter shares a fixed-window counter across instances.
type RedisLimiter struct {
	R      *repo.Redis
	Limit  int
	Window time.Duration
}

func (l RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.R.Allow(ctx, key, l.Limit, l.Window)
}

type bucket struct {
	hits    int
	started time.Time
}

// RateLimiter is the single-instance fallback used when Redis is not configured.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    int
	window  time.Duration
	now     func() time.Time
}

func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*bucket), rate: rate, window: window, now: time.Now}
}

func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	if rl.rate <= 0 {
		return true, nil
	}
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[key]
	if !ok || now.Sub(b.started) >= rl.window {
		if len(rl.buckets) > 10000 {
			rl.sweep(now)
		}
		rl.buckets[key] = &bucket{hits: 1, started: now}
		return true, nil
	}
	if b.hits < rl.rate {
		b.hits++
		return true, nil
	}
	return false, nil
}

func (rl *RateLimiter) sweep(now time.Time) {
	for k, b := range rl.buckets {
		if now.Sub(b.started) >= rl.window {
			delete(rl.buckets, k)
		}
	}
}

func ClientIP(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(ip); err == nil && host != "" {
		return host
	}
	return ip
}

// RateLimit limits per client IP and route. Limiter errors fail open.
func (h *Handler) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.Limiter == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		ok, err := h.Limiter.Allow(c.Request.Context(), route+"|"+ClientIP(c))
		if err != nil {
			applog.WithDD(c.Request.Context(), h.Log).Warn("rate limiter unavailable", zap.Error(err))
		}
		if !ok {
			metrics.RateLimited.WithLabelValues(route).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResp{Error: "too many requests"})
			return
		}
		c.Next()
	}
}

// RequireToken rejects requests without an access token. The token itself is
// validated by the core on every call.
func (h *Handler) RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := h.accessToken(c)
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResp{Error: "missing access token"})
			return
		}
		c.Set(accessTokenKey, tok)
		c.Next()
	}
}

package rest

import (
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/juicedmedia/lead-compliance-backend/internal/infrastructure/config"
)

// Middleware wraps a handler
type Middleware func(http.Handler) http.Handler

// chain applies middlewares outermost-first
func chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogging logs every request with its outcome and latency
func requestLogging(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr))
		})
	}
}

// recovery converts handler panics into 500 responses
func recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("handler panicked",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()))
					writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
						Code:    "INTERNAL_ERROR",
						Message: "an internal error occurred",
					}})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter enforces a per-IP fixed-window limit in redis so the limit
// holds across replicas. When redis is unavailable a local token bucket
// takes over; an unreachable limiter degrades, it never blocks traffic.
type rateLimiter struct {
	client *redis.Client
	cfg    config.RateLimitConfig
	local  *rate.Limiter
	logger *zap.Logger
}

func newRateLimiter(client *redis.Client, cfg config.RateLimitConfig, logger *zap.Logger) *rateLimiter {
	return &rateLimiter{
		client: client,
		cfg:    cfg,
		local:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
		logger: logger,
	}
}

func (l *rateLimiter) middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(r) {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.RequestsPerSecond))
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{
					Code:    "RATE_LIMIT_EXCEEDED",
					Message: "too many requests",
				}})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *rateLimiter) allow(r *http.Request) bool {
	if l.client == nil {
		return l.local.Allow()
	}

	ctx := r.Context()
	window := time.Now().Truncate(time.Second).Unix()
	key := fmt.Sprintf("ratelimit:%s:%d", clientIP(r), window)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("rate limit redis unavailable, using local limiter", zap.Error(err))
		return l.local.Allow()
	}
	if count == 1 {
		l.client.Expire(ctx, key, 2*time.Second)
	}
	return count <= int64(l.cfg.RequestsPerSecond)
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

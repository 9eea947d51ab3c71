package server

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/metaswap-gateway/internal/telemetry"
	"golang.org/x/time/rate"
)

// Header names for the opaque caller identity
const (
	HeaderCallerID  = "X-Caller-ID"
	HeaderRequestID = "X-Request-ID"
)

// identity attaches caller and request ids to the request context. A
// missing request id is generated and echoed back.
func identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(HeaderRequestID, requestID)

		ctx := telemetry.WithCaller(c.Request.Context(), c.GetHeader(HeaderCallerID), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logrus.WithFields(telemetry.Fields(c.Request.Context(), logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		})).Debug("Request handled")
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiter keeps one token bucket per caller, falling back to client IP.
type limiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor
}

const visitorTTL = 3 * time.Minute

func newLimiter(rps float64, burst int) *limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &limiter{limit: limit, burst: max(burst, 1), visitors: make(map[string]*visitor)}
}

func (l *limiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok {
		if len(l.visitors) > 1024 {
			l.sweep(now)
		}
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// sweep drops idle visitors. Callers hold mu.
func (l *limiter) sweep(now time.Time) {
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(l.visitors, key)
		}
	}
}

func (l *limiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := telemetry.CallerID(c.Request.Context())
		if key == "" {
			key = c.ClientIP()
		}
		if !l.get(key, time.Now()).Allow() {
			rateLimited(c)
			return
		}
		c.Next()
	}
}

package httpapi

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// pruneThreshold is the limiter count above which idle limiters are dropped.
const pruneThreshold = 1024

// limiterSet holds one token bucket per context.
type limiterSet struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// newLimiterSet returns nil when perSecond is not positive, disabling limits.
func newLimiterSet(perSecond float64, burst int) *limiterSet {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &limiterSet{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether one more request for contextID may proceed now.
func (l *limiterSet) Allow(contextID string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[contextID]
	if !ok {
		if len(l.limiters) >= pruneThreshold {
			l.pruneLocked()
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[contextID] = lim
	}
	return lim.Allow()
}

// pruneLocked drops limiters whose bucket has refilled; they carry no state.
func (l *limiterSet) pruneLocked() {
	for id, lim := range l.limiters {
		if lim.Tokens() >= float64(l.burst) {
			delete(l.limiters, id)
		}
	}
}

// limitEnqueue rejects enqueues beyond the per-context rate.
func (s *Server) limitEnqueue() gin.HandlerFunc {
	return func(c *gin.Context) {
		contextID := c.Param("id")
		if !s.limiter.Allow(contextID) {
			zlog.Debug().Str("context", contextID).Msg("http: enqueue rate limited")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response{
				Code:    "rate_limited",
				Message: s.config.GetMessage("rate_limited"),
			})
			return
		}
		c.Next()
	}
}

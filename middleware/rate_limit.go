package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/quillboard/quillboard/config"
	"github.com/quillboard/quillboard/utils"
)

const visitorTTL = 5 * time.Minute

// visitor tracks one client IP's token bucket. rate.Limiter is safe for
// concurrent use, so only the map itself needs locking.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitorsMu sync.Mutex
	visitors   = map[string]*visitor{}
)

// RateLimitMiddleware throttles requests per client IP with a token bucket
// sized from the configured per-minute budget.
func RateLimitMiddleware() gin.HandlerFunc {
	perMinute := config.Get().RateLimitPerMinute
	if perMinute < 1 {
		perMinute = 1
	}
	limit := rate.Every(time.Minute / time.Duration(perMinute))
	burst := perMinute / 2
	if burst < 1 {
		burst = 1
	}

	return func(ctx *gin.Context) {
		if !visitorLimiter(ctx.ClientIP(), limit, burst).Allow() {
			utils.Error(ctx, http.StatusTooManyRequests, 42901, "rate limit exceeded")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

func visitorLimiter(ip string, limit rate.Limit, burst int) *rate.Limiter {
	visitorsMu.Lock()
	defer visitorsMu.Unlock()

	now := time.Now()
	for key, v := range visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(visitors, key)
		}
	}

	v, ok := visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(limit, burst)}
		visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

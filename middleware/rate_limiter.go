package middleware

import (
	"net/http"
	"sync"
	"time"

	"tripbot/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ipLimiters hands out one token bucket per client address.
type ipLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func (s *ipLimiters) get(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(s.rps, s.burst)
		s.limiters[ip] = limiter
	}
	return limiter
}

var limiterStore = &ipLimiters{
	limiters: make(map[string]*rate.Limiter),
	rps:      rate.Every(time.Second / 10),
	burst:    30,
}

// RateLimitMiddleware caps request rates per client IP. Payment gateways
// retry failed webhooks aggressively, so the burst leaves room for that.
func RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := getClientIP(c)
		if !limiterStore.get(ip).Allow() {
			zap.L().Warn("Rate limit exceeded", zap.String("ip", ip))
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				utils.ErrorResponse{Error: "rate limit exceeded, try again later"})
			return
		}
		c.Next()
	}
}

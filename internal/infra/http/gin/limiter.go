package ginserver

import (
	"fmt"
	"math"
	"net/http"
	"sync"

	gin "github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter throttles requests per caller, keyed by user id or client IP.
type RateLimiter struct {
	limiters sync.Map
	rps      rate.Limit
	burst    int
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 5
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{rps: limit, burst: burst}
}

func (l *RateLimiter) getLimiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}

func (l *RateLimiter) Handle(c *gin.Context) {
	key := "ip:" + c.ClientIP()
	if p, ok := currentPrincipal(c); ok {
		key = "user:" + string(p.UserID)
	}
	if !l.getLimiter(key).Allow() {
		retry := 1.0
		if l.rps != rate.Inf && l.rps > 0 {
			retry = math.Ceil(1 / float64(l.rps))
		}
		c.Header("Retry-After", fmt.Sprintf("%.0f", retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Code: "rate_limited", Error: "too many requests; slow down"})
		return
	}
	c.Next()
}

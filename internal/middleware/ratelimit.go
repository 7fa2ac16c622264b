package middleware

import (
	"net/http"
	"sync"
	"time"

	"docqa-go/internal/model"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// UserRateLimiter 为每个用户维护一个令牌桶，HTTP 与 WebSocket 问答共用同一额度。
// nil 值表示不限制。
type UserRateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[uint]*rate.Limiter
}

// NewUserRateLimiter 创建按用户限流器；perMinute <= 0 时返回 nil（不限制）。
func NewUserRateLimiter(perMinute, burst int) *UserRateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &UserRateLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
		limiters: make(map[uint]*rate.Limiter),
	}
}

// Allow 消耗该用户的一个令牌，额度耗尽时返回 false。
func (u *UserRateLimiter) Allow(userID uint) bool {
	if u == nil {
		return true
	}
	u.mu.Lock()
	l, ok := u.limiters[userID]
	if !ok {
		l = rate.NewLimiter(u.limit, u.burst)
		u.limiters[userID] = l
	}
	u.mu.Unlock()
	return l.Allow()
}

// Handler 返回限流中间件，超出额度时返回 429。必须放在 AuthMiddleware 之后。
func (u *UserRateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, _ := c.Get("user")
		user, ok := v.(*model.User)
		if !ok || user == nil {
			c.Next()
			return
		}
		if !u.Allow(user.ID) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": http.StatusTooManyRequests, "message": "请求过于频繁，请稍后再试"})
			return
		}
		c.Next()
	}
}

// QueryRateLimit 是 NewUserRateLimiter(perMinute, burst).Handler() 的简写。
func QueryRateLimit(perMinute, burst int) gin.HandlerFunc {
	return NewUserRateLimiter(perMinute, burst).Handler()
}

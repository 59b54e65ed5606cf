package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"zeropay.com/pkg/logger"
	"zeropay.com/pkg/ratelimit"
)

func RateLimit(store *ratelimit.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := c.ClientIP() + ":" + route

		if !store.Allow(key) {
			// 限流属于可控拒绝，不打堆栈（压测会炸日志）
			logger.Warn(c, "http rate limited",
				zap.String("ip", c.ClientIP()),
				zap.String("route", route),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status": "failure",
				"error":  "too many requests",
			})
			return
		}
		c.Next()
	}
}

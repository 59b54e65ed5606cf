package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"zeropay.com/pkg/logger"
)

const HeaderRequestID = "X-Request-Id"

func ReqId() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(logger.TraceIdKey, rid)
		// 将 request id 写入 request context，后续日志可以取到
		ctx := context.WithValue(c.Request.Context(), logger.TraceIdKey, rid) //nolint:staticcheck
		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderRequestID, rid)
		c.Next()
	}
}

package http

import "github.com/gin-gonic/gin"

// 统一的失败返回格式 {"status":"failure","error":"..."}
func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"status": "failure",
		"error":  msg,
	})
}

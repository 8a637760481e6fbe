package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccessLog logs each request through log.
func AccessLog(log *zap.SugaredLogger) gin.HandlerFunc {
	log = orNop(log)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugw("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"remote", c.ClientIP(),
			"latency", time.Since(start),
		)
	}
}

// Recovery turns a panic in a handler into a 500 and logs it.
func Recovery(log *zap.SugaredLogger) gin.HandlerFunc {
	log = orNop(log)
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Errorw("handler panicked", "path", c.Request.URL.Path, "panic", recovered)
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	})
}

func orNop(log *zap.SugaredLogger) *zap.SugaredLogger {
	if log == nil {
		return zap.NewNop().Sugar()
	}
	return log
}

// internal/middleware/recovery_middleware.go
package middleware

import (
	"errors"
	"net"
	"net/http"
	"os"
	"strings"

	"dashboard-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryMiddleware turns a handler panic into a 500 envelope. A panic
// caused by the client hanging up is logged without a stack and nothing is
// written back.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			fields := []zap.Field{
				zap.Any("panic", rec),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
			}
			if id, ok := GetIdentityID(c); ok {
				fields = append(fields, zap.Int64("identity_id", id))
			}

			if brokenPipe(rec) {
				logger.Warn("client connection lost", fields...)
				c.Abort()
				return
			}

			logger.Error("panic recovered", append(fields, zap.Stack("stack"))...)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.Error(c, http.StatusInternalServerError, "internal server error", nil)
		}()
		c.Next()
	}
}

func brokenPipe(rec interface{}) bool {
	err, ok := rec.(error)
	if !ok {
		return false
	}
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		return false
	}
	var sysErr *os.SyscallError
	if !errors.As(opErr, &sysErr) {
		return false
	}
	msg := strings.ToLower(sysErr.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}

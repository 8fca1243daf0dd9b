package middleware

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"syscall"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.WarnLevel)

	r := gin.New()
	r.Use(RecoveryMiddleware(zap.New(core)))
	r.GET("/boom", func(*gin.Context) { panic("boom") })
	r.GET("/hangup", func(*gin.Context) {
		panic(&net.OpError{Op: "write", Err: os.NewSyscallError("write", syscall.EPIPE)})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/hangup", nil))
	assert.Empty(t, w.Body.String())
	assert.Equal(t, 1, logs.FilterMessage("client connection lost").Len())
}

func TestBrokenPipe(t *testing.T) {
	assert.False(t, brokenPipe("text"))
	assert.False(t, brokenPipe(errors.New("broken pipe")))
	assert.True(t, brokenPipe(&net.OpError{Op: "write", Err: os.NewSyscallError("write", syscall.ECONNRESET)}))
}

package auth

import (
	"net/http"

	"dashboard-service/internal/middleware"
	"dashboard-service/internal/pkg/response"
	authUsecase "dashboard-service/internal/service/auth"

	"github.com/gin-gonic/gin"
)

// LoginPage stands in for the login screen. It echoes the callback target
// and timeout flag the guard attached.
func LoginPage(c *gin.Context) {
	response.Success(c, http.StatusOK, "sign in required", gin.H{
		"callbackUrl": c.Query("callbackUrl"),
		"timeout":     c.Query("timeout") == "true",
	})
}

// DashboardPage stands in for the dashboard shell.
func DashboardPage(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	response.Success(c, http.StatusOK, "dashboard", gin.H{
		"user": authUsecase.UserInfoFromClaims(claims),
		"path": c.Request.URL.Path,
	})
}

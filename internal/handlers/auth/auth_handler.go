// internal/handlers/auth/auth_handler.go
package auth

import (
	"context"
	"net/http"
	"time"

	"dashboard-service/internal/domain/auth"
	"dashboard-service/internal/middleware"
	"dashboard-service/internal/pkg/jwt"
	"dashboard-service/internal/pkg/response"
	authUsecase "dashboard-service/internal/service/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Authenticator is the login/logout half of the auth service.
type Authenticator interface {
	Login(ctx context.Context, req *auth.LoginRequest) (string, *auth.LoginResponse, error)
	Logout(ctx context.Context, claims *jwt.Claims) error
}

// ResetFlow is the password reset orchestrator.
type ResetFlow interface {
	RequestReset(ctx context.Context, email string) error
	ConfirmCode(ctx context.Context, email, code string) (*auth.ResetVerifyResponse, error)
	CompleteReset(ctx context.Context, ticket, newPassword string) (*auth.ResetCompleteResponse, error)
}

type AuthHandler struct {
	authService  Authenticator
	resetService ResetFlow
	cookie       middleware.CookieConfig
	logger       *zap.Logger
}

func NewAuthHandler(authService Authenticator, resetService ResetFlow, cookie middleware.CookieConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		resetService: resetService,
		cookie:       cookie,
		logger:       logger,
	}
}

// ========== Login ==========

// Login verifies credentials and sets the session cookie. The token never
// appears in the response body.
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	req.IPAddress = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	token, loginResp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, "login failed", err)
		return
	}

	h.cookie.Set(c, token)
	response.Success(c, http.StatusOK, "login successful", loginResp)
}

// ========== Logout ==========

// Logout revokes the current session (requires auth)
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	if err := h.authService.Logout(c.Request.Context(), claims); err != nil {
		h.logger.Error("logout failed", zap.String("jti", claims.ID), zap.Error(err))
		response.FromError(c, "logout failed", err)
		return
	}

	h.cookie.Clear(c)
	response.Success(c, http.StatusOK, "logout successful", nil)
}

// ========== Session ==========

type meResponse struct {
	User         auth.UserInfo `json:"user"`
	LastActivity time.Time     `json:"last_activity"`
	ExpiresAt    time.Time     `json:"expires_at"`
}

// Me returns the current session (requires auth)
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	resp := meResponse{
		User:         authUsecase.UserInfoFromClaims(claims),
		LastActivity: claims.LastActivityAt().UTC(),
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	response.Success(c, http.StatusOK, "session", resp)
}

// ========== Password Reset ==========

// RequestReset answers 202 whether or not the email is known.
func (h *AuthHandler) RequestReset(c *gin.Context) {
	var req auth.ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.resetService.RequestReset(c.Request.Context(), req.Email); err != nil {
		h.logger.Error("reset request failed", zap.Error(err))
		response.FromError(c, "password reset unavailable", err)
		return
	}

	response.Success(c, http.StatusAccepted, "if the email is registered, a reset code has been sent", nil)
}

// VerifyReset exchanges the emailed code for a reset ticket.
func (h *AuthHandler) VerifyReset(c *gin.Context) {
	var req auth.ResetVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	resp, err := h.resetService.ConfirmCode(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		response.FromError(c, "code verification failed", err)
		return
	}

	response.Success(c, http.StatusOK, "code verified", resp)
}

// CompleteReset sets the new password. The user signs in again afterwards.
func (h *AuthHandler) CompleteReset(c *gin.Context) {
	var req auth.ResetCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	resp, err := h.resetService.CompleteReset(c.Request.Context(), req.Ticket, req.NewPassword)
	if err != nil {
		response.FromError(c, "password reset failed", err)
		return
	}

	h.cookie.Clear(c)
	response.Success(c, http.StatusOK, "password reset successful, please sign in", resp)
}

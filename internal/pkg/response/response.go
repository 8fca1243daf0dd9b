// internal/pkg/response/response.go
package response

import (
	"net/http"

	xerrors "dashboard-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Response defines the standard API response format.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success sends a successful response with a message and optional data.
func Success(c *gin.Context, status int, message string, data interface{}) {
	if status == 0 {
		status = http.StatusOK
	}

	c.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error sends a standardized error response.
func Error(c *gin.Context, code int, message string, err error, data ...interface{}) {
	// Abort first so no later handler writes to the response.
	c.Abort()

	response := Response{
		Success: false,
		Message: message,
	}

	if err != nil {
		response.Error = err.Error()
	}

	if len(data) > 0 {
		response.Data = data[0]
	}

	c.JSON(code, response)
}

// FromError answers with the status derived from the error kind. Internal and
// store failures never expose the underlying error text.
func FromError(c *gin.Context, message string, err error) {
	kind := xerrors.KindOf(err)
	status := xerrors.HTTPStatus(kind)

	c.Abort()
	resp := Response{
		Success: false,
		Message: message,
		Code:    kind.String(),
	}
	if status < http.StatusInternalServerError {
		resp.Error = publicMessage(kind)
	}
	c.JSON(status, resp)
}

func publicMessage(kind xerrors.Kind) string {
	switch kind {
	case xerrors.KindExpired, xerrors.KindMismatch:
		// one message for both so the failing check is not revealed
		return "invalid or expired code"
	case xerrors.KindNotFound:
		return "no pending verification"
	case xerrors.KindUnauthorized:
		return "authentication required"
	case xerrors.KindForbidden:
		return "insufficient permissions"
	case xerrors.KindRateLimited:
		return "too many requests"
	default:
		return "invalid request"
	}
}

// ValidationError sends a 400 Bad Request response for invalid input.
func ValidationError(c *gin.Context, message string, err error) {
	Error(c, http.StatusBadRequest, message, err)
}

// Unauthorized sends a 401 Unauthorized response.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message, nil)
}

// Forbidden sends a 403 Forbidden response.
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message, nil)
}

// NotFound sends a 404 Not Found response.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message, nil)
}

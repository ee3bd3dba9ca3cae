package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"parchment/internal/service"
)

type Envelope struct {
	Success    bool     `json:"success"`
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Data       any      `json:"data,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

func Success(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Envelope{
		Success:    true,
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

func Fail(c *gin.Context, status int, message string, errs ...string) {
	c.AbortWithStatusJSON(status, Envelope{
		Success:    false,
		StatusCode: status,
		Message:    message,
		Errors:     errs,
	})
}

// Error answers with the status mapped from err. The error is attached to the
// gin context so the access log can report it; 5xx bodies never carry err text.
func Error(c *gin.Context, err error) {
	_ = c.Error(err)
	status, message := StatusFor(err)
	Fail(c, status, message)
}

func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid user credentials"
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized request"
	case errors.Is(err, service.ErrExpiredToken):
		return http.StatusUnauthorized, "token expired"
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid token"
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, "user with this email already exists"
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrNoteNotFound):
		return http.StatusNotFound, "note not found"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

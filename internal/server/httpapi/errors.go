package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/photokeeper/internal/common"
	"github.com/dmitrijs2005/photokeeper/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
)

const (
	msgMissingFields      = "Missing required fields"
	msgInvalidCredentials = "Invalid credentials"
	msgUserNotFound       = "User not found"
	msgServerError        = "Server error"
)

// statusFor maps a service error to the HTTP status and the message shown
// to the client.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, msgMissingFields
	case errors.Is(err, services.ErrInvalidCodeFormat):
		return http.StatusBadRequest, services.ErrInvalidCodeFormat.Error()
	case errors.Is(err, services.ErrDuplicateEmail):
		return http.StatusBadRequest, "User already exists"
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusBadRequest, msgInvalidCredentials
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "Token expired"
	case errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized, "Invalid token"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, msgUserNotFound
	case errors.Is(err, services.ErrLinkRequired):
		return http.StatusConflict, services.ErrLinkRequired.Error()
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, "Account is already linked to another identity"
	default:
		return http.StatusInternalServerError, msgServerError
	}
}

// fail writes the mapped error. Server errors are logged with their oops
// context; client errors only at debug level.
func (s *Server) fail(c *gin.Context, operation string, err error) {
	code, msg := statusFor(err)
	ctx := c.Request.Context()

	args := []any{"operation", operation, "error", err.Error()}
	if oe, ok := oops.AsOops(err); ok {
		args = append(args, "code", oe.Code())
		for k, v := range oe.Context() {
			args = append(args, k, v)
		}
	}

	if code >= http.StatusInternalServerError {
		s.logger.Error(ctx, "request failed", args...)
	} else {
		s.logger.Debug(ctx, "request rejected", args...)
	}

	c.AbortWithStatusJSON(code, gin.H{"msg": msg})
}

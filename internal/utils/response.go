package utils

import (
	"net/http"

	"medscribe/pkg/errors"

	"github.com/gin-gonic/gin"
)

func Success(c *gin.Context, data any) {
	Respond(c, http.StatusOK, data)
}

func Respond(c *gin.Context, code int, data any) {
	c.JSON(code, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, code int, reason, msg string) {
	c.JSON(code, gin.H{
		"success": false,
		"error": gin.H{
			"reason":  reason,
			"message": msg,
		},
	})
}

// Fail writes err using the status of its Kind. Errors without a message of
// their own are reported as "internal error".
func Fail(c *gin.Context, err error) {
	msg := "internal error"
	var e *errors.Error
	if errors.As(err, &e) && e.Message != "" {
		msg = e.Message
	}

	Error(c, StatusFor(errors.KindOf(err)), errors.ReasonOf(err), msg)
}

func StatusFor(kind errors.Kind) int {
	switch kind {
	case errors.KindInput:
		return http.StatusBadRequest
	case errors.KindUnauthenticated:
		return http.StatusUnauthorized
	case errors.KindForbidden:
		return http.StatusForbidden
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindState, errors.KindConflict:
		return http.StatusConflict
	case errors.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case errors.KindContent:
		return http.StatusUnprocessableEntity
	case errors.KindStorage, errors.KindUpstream:
		return http.StatusBadGateway
	case errors.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

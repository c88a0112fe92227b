package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Yab112/art-store-backend-sub000/internal/errors"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
)

var errorLogger = logging.NewLoggerV2("handlers")

func statusFor(err *errors.Error) int {
	switch err.Kind {
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindBusinessRule:
		if err.Code == errors.CodeForbidden {
			return http.StatusForbidden
		}
		return http.StatusUnprocessableEntity
	case errors.KindExternalProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var appErr *errors.Error
	if !errors.As(err, &appErr) {
		errorLogger.Error("Unhandled error", logging.Fields{
			"path":  c.FullPath(),
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	body := gin.H{
		"error": appErr.Message,
		"kind":  appErr.Kind,
	}
	if appErr.Code != "" {
		body["code"] = appErr.Code
	}
	if appErr.Field != "" {
		body["field"] = appErr.Field
	}
	if len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}

	c.JSON(statusFor(appErr), body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "kind": errors.KindValidation})
}

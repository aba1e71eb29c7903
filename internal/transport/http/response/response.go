// Package response defines the API envelope and maps service errors to
// HTTP statuses and stable API codes.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"paperchat/internal/ai"
	"paperchat/internal/app"
)

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeUnauthorized       = 40100
	CodeInternalServer     = 50000
	CodeUsernameExists     = 40001
	CodeEmailExists        = 40002
	CodeInvalidCredentials = 40101
	CodeSessionNotFound    = 40401
	CodeDocumentNotFound   = 40402
	CodeDocumentNotReady   = 40901
	CodeAIUnavailable      = 50301
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// ServiceError writes the response for an error returned by a service
// call. Known sentinel errors map to their status and code; anything else
// is a 500 carrying the fallback message so internals never leak.
func ServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrMessageEmpty):
		Error(c, http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidCredential):
		Error(c, http.StatusUnauthorized, CodeInvalidCredentials, err.Error())
	case errors.Is(err, app.ErrUsernameExists):
		Error(c, http.StatusConflict, CodeUsernameExists, err.Error())
	case errors.Is(err, app.ErrEmailExists):
		Error(c, http.StatusConflict, CodeEmailExists, err.Error())
	case errors.Is(err, app.ErrDocumentNotFound):
		Error(c, http.StatusNotFound, CodeDocumentNotFound, err.Error())
	case errors.Is(err, app.ErrSessionNotFound):
		Error(c, http.StatusNotFound, CodeSessionNotFound, err.Error())
	case errors.Is(err, app.ErrDocumentNotReady):
		Error(c, http.StatusConflict, CodeDocumentNotReady, err.Error())
	case errors.Is(err, ai.ErrAIService):
		Error(c, http.StatusServiceUnavailable, CodeAIUnavailable, "ai service unavailable")
	default:
		Error(c, http.StatusInternalServerError, CodeInternalServer, fallback)
	}
}

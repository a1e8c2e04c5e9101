package endpoints

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reframe/internal/store"
)

// API error codes returned in the error envelope.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	CodeRateLimited     = "RATE_LIMITED"
	CodeServerError     = "SERVER_ERROR"
)

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func abortError(c *gin.Context, status int, code, message string, details map[string]any) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: message, Details: details})
}

func validationError(c *gin.Context, message string, details map[string]any) {
	abortError(c, http.StatusBadRequest, CodeValidation, message, details)
}

func serverError(c *gin.Context, message string) {
	abortError(c, http.StatusInternalServerError, CodeServerError, message, nil)
}

// storeError maps store sentinel errors onto the API taxonomy.
func storeError(c *gin.Context, err error, notFoundMessage string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		abortError(c, http.StatusNotFound, CodeNotFound, notFoundMessage, nil)
	case errors.Is(err, store.ErrConflict):
		abortError(c, http.StatusConflict, CodeConflict, err.Error(), nil)
	default:
		serverError(c, err.Error())
	}
}

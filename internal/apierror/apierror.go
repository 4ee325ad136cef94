package apierror

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/researchlab/labsite/internal/admin"
	"github.com/researchlab/labsite/internal/content"
	"github.com/researchlab/labsite/internal/storage"
	"github.com/researchlab/labsite/pkg/logger"
)

// AppError carries the HTTP status for an error returned by a handler.
type AppError struct {
	Code    int    // HTTP status code
	Message string // client facing message
	Err     error  // underlying error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func New(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

var (
	BadRequest   = func(err error) *AppError { return New(http.StatusBadRequest, "Invalid input", err) }
	Unauthorized = func(err error) *AppError { return New(http.StatusUnauthorized, "Unauthorized", err) }
	NotFound     = func(err error) *AppError { return New(http.StatusNotFound, "Not found", err) }
	Internal     = func(err error) *AppError { return New(http.StatusInternalServerError, "Internal server error", err) }
)

// From classifies err. Domain errors keep their own text as the message; anything
// unrecognised becomes a 500.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, content.ErrUnauthorized),
		errors.Is(err, admin.ErrInvalidCredentials):
		return New(http.StatusUnauthorized, err.Error(), err)
	case errors.Is(err, content.ErrSectionNotFound),
		errors.Is(err, content.ErrRecordNotFound),
		errors.Is(err, storage.ErrBlobNotFound):
		return New(http.StatusNotFound, err.Error(), err)
	case errors.Is(err, content.ErrInvalidShape),
		errors.Is(err, content.ErrInvalidID),
		errors.Is(err, content.ErrInvalidSection),
		storage.IsRejected(err):
		return New(http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, content.ErrCorrupt):
		return New(http.StatusInternalServerError, "Content document is corrupt", err)
	}
	return Internal(err)
}

// Handle writes the error body {message, error?}. Only server errors expose the
// underlying cause.
func Handle(c *gin.Context, err error) {
	e := From(err)
	body := gin.H{"message": e.Message}
	if e.Code >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		if e.Err != nil {
			body["error"] = e.Err.Error()
		}
	} else {
		logger.Debugf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(e.Code, body)
}

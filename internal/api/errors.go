package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"campusattend/internal/attendance"
)

// fail writes the response for a service error.
func (s *Server) fail(c *gin.Context, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "route", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error", "code": code})
		return
	}
	body := gin.H{"error": err.Error(), "code": code}
	var verr *attendance.ValidationError
	if errors.As(err, &verr) && len(verr.Fields) > 0 {
		body["fields"] = verr.Fields
	}
	c.AbortWithStatusJSON(status, body)
}

// classify maps error kinds to an HTTP status and a stable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, attendance.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, attendance.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, attendance.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, attendance.ErrSessionClosed):
		return http.StatusConflict, "session_closed"
	case errors.Is(err, attendance.ErrQRExpired):
		return http.StatusGone, "qr_expired"
	case errors.Is(err, attendance.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// badRequest reports a body that could not be decoded.
func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
}

// pagination reads limit and offset, ignoring malformed values.
func pagination(c *gin.Context) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > 200 {
		limit = 200
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

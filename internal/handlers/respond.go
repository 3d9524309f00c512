package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ramallah-time/internal/listing"
)

// AdminTokenHeader carries the admin secret, an owner secret or an owner token.
const AdminTokenHeader = "X-Admin-Token"

// credential returns the caller credential from X-Admin-Token, falling back
// to an Authorization bearer value.
func credential(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader(AdminTokenHeader)); v != "" {
		return v
	}
	auth := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// statusOf maps a listing error kind onto an HTTP status.
func statusOf(err error, hasCredential bool) int {
	switch {
	case errors.Is(err, listing.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, listing.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, listing.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, listing.ErrUnauthorized):
		if hasCredential {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case errors.Is(err, listing.ErrExpired):
		return http.StatusForbidden
	case errors.Is(err, listing.ErrDependency):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusOf(err, credential(c) != ""), gin.H{"error": listing.Message(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// uintParam parses a positive id path parameter.
func uintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return uint(id), true
}

// floatQuery parses an optional float query parameter.
func floatQuery(c *gin.Context, name string) (*float64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return nil, false
	}
	return &v, true
}

package http

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID identifies the caller. Authentication happens upstream.
const HeaderUserID = "X-User-ID"

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
	maxUserIDLength          = 128
)

const userIDKey = "user_id"

// ParseUserID reads and sanitizes the caller identity.
func ParseUserID(c *gin.Context) (string, bool) {
	id := sanitizeInput(c.GetHeader(HeaderUserID))
	if id == "" || len(id) > maxUserIDLength || strings.ContainsAny(id, " :*") {
		return "", false
	}
	return id, true
}

// ParseLimit reads ?limit= clamped to [1, maxNotificationLimit].
func ParseLimit(c *gin.Context) int {
	v := strings.TrimSpace(c.Query("limit"))
	if v == "" {
		return defaultNotificationLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return defaultNotificationLimit
	}
	return min(n, maxNotificationLimit)
}

// sanitizeInput drops control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}

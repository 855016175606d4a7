package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// Headers set by the gateway after authentication
const (
	UserIDHeader   = "X-User-ID"
	UserRoleHeader = "X-User-Role"
)

const (
	ctxUserID   = "user_id"
	ctxUserRole = "user_role"
)

// Roles allowed to act as venue staff
var staffRoles = map[string]bool{
	"owner":   true,
	"manager": true,
	"staff":   true,
	"admin":   true,
}

// Identity copies the gateway identity headers into the gin context
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(UserIDHeader)); id != "" {
			c.Set(ctxUserID, id)
		}
		if role := strings.ToLower(strings.TrimSpace(c.GetHeader(UserRoleHeader))); role != "" {
			c.Set(ctxUserRole, role)
		}
		c.Next()
	}
}

// GetUserID returns the caller's user id if the gateway supplied one
func GetUserID(c *gin.Context) (string, bool) {
	v := c.GetString(ctxUserID)
	return v, v != ""
}

// IsStaff reports whether the caller acts for the venue
func IsStaff(c *gin.Context) bool {
	return staffRoles[c.GetString(ctxUserRole)]
}

// CallerID returns the user id, or "anonymous"
func CallerID(c *gin.Context) string {
	if id, ok := GetUserID(c); ok {
		return id
	}
	return "anonymous"
}

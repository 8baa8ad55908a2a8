package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/homeescrow/internal/logging"
)

// ContextKeyUser is the gin context key holding the authenticated User.
const ContextKeyUser = "authUser"

// Middleware resolves the bearer token, if any, and stores the user in the
// gin context. It never rejects; use RequireAuth for that.
func Middleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if raw == "" {
			raw = c.Query("token")
		}
		if raw != "" {
			if user, err := v.Verify(raw); err == nil {
				c.Set(ContextKeyUser, user)
				ctx := logging.WithLogger(c.Request.Context(),
					logging.FromContext(c.Request.Context()).With("user_id", user.ID.String()))
				c.Request = c.Request.WithContext(ctx)
			}
		}
		c.Next()
	}
}

// RequireAuth rejects requests without a valid token.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentUser(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Bearer token required. Include 'Authorization: Bearer <jwt>' header.",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects non-admin callers.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Bearer token required.",
			})
			return
		}
		if !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Administrator role required.",
			})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user, if any.
func CurrentUser(c *gin.Context) (User, bool) {
	v, ok := c.Get(ContextKeyUser)
	if !ok {
		return User{}, false
	}
	user, ok := v.(User)
	return user, ok
}

package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKeyUser is the key for the acting User in gin context
const ContextKeyUser = "flag_user"

// Middleware validates the bearer token, loads the user and sets it in context
func Middleware(tokens *Tokens, dir Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		// Expect "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := tokens.Validate(parts[1])
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Token has expired"})
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			c.Abort()
			return
		}

		user, err := dir.Lookup(c.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, ErrUnknownUser) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Unknown user"})
			} else {
				slog.Error("failed to load user", "user", claims.UserID, "err", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
			}
			c.Abort()
			return
		}

		c.Set(ContextKeyUser, user)
		c.Next()
	}
}

// RequireStaff middleware checks if the user may moderate
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := Current(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		if !user.Staff || !user.Active {
			c.JSON(http.StatusForbidden, gin.H{"error": "Staff access required"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// Current returns the acting user from the gin context
func Current(c *gin.Context) (User, bool) {
	v, exists := c.Get(ContextKeyUser)
	if !exists {
		return User{}, false
	}
	u, ok := v.(User)
	return u, ok
}

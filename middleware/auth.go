package middleware

import (
	"errors"
	"net/http"
	"strings"

	"production-dashboard/models"
	"production-dashboard/services"
	"production-dashboard/utils"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware accepts only tokens of the session user. A verified newer
// token replaces the session token and is used from the next request or
// reconnect. Without a secret only the session token itself is accepted.
func AuthMiddleware(tokens *services.TokenSource, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Success: false,
				Message: "Authorization header required",
			})
			c.Abort()
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Success: false,
				Message: "Invalid authorization header format",
			})
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(tokenParts[1], secret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Success: false,
				Message: "Invalid or expired token",
				Error:   err.Error(),
			})
			c.Abort()
			return
		}
		user, err := claims.User()
		if err != nil {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Success: false,
				Message: "Invalid token claims",
				Error:   err.Error(),
			})
			c.Abort()
			return
		}

		switch err := tokens.Update(tokenParts[1]); {
		case err == nil, errors.Is(err, services.ErrTokenNotNewer):
		case errors.Is(err, services.ErrTokenUserMismatch):
			c.JSON(http.StatusForbidden, models.ErrorResponse{
				Success: false,
				Message: "Token does not belong to this dashboard",
				Error:   err.Error(),
			})
			c.Abort()
			return
		default:
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Success: false,
				Message: "Token rejected",
				Error:   err.Error(),
			})
			c.Abort()
			return
		}

		c.Set("user_id", user.ID)
		c.Set("user_email", user.Email)
		c.Set("user_role", user.Role)
		c.Next()
	}
}

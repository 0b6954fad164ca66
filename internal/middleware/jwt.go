package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sentra-proctor/backend/internal/auth"
	"github.com/sentra-proctor/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
	// ContextCompanyID is the key for the monitor's company ID in gin context.
	ContextCompanyID = "company_id"
)

// JWT returns a middleware that validates the session token and sets user
// claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		if claims.CompanyID != nil {
			c.Set(ContextCompanyID, *claims.CompanyID)
		}
		c.Next()
	}
}

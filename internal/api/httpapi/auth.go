package httpapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminTokenHeader is the header name for admin authentication token.
const AdminTokenHeader = "X-Admin-Token"

// requireAdmin rejects requests that do not carry the configured admin token.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(AdminTokenHeader)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.config.Admin.Token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response{
				Code:    "unauthenticated",
				Message: http.StatusText(http.StatusUnauthorized),
			})
			return
		}
		c.Next()
	}
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sofialabs/sofia-bot/internal/auth"
)

const SubjectKey = "auth_subject"

// AuthRequired guards the ops endpoints with a bearer JWT.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    40101,
				"message": "unauthorized",
				"data":    nil,
			})
			return
		}
		subject, err := auth.ParseJWT(strings.TrimPrefix(header, "Bearer "), secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    40102,
				"message": "invalid token",
				"data":    nil,
			})
			return
		}
		c.Set(SubjectKey, subject)
		c.Next()
	}
}

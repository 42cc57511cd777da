package jwtmw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"smartsort_backend/internal/api"
)

// EnvKeyJWTSecret is the environment variable holding the HMAC secret.
// Authentication is disabled when it is empty.
const EnvKeyJWTSecret = "JWT_SECRET"

// ContextLabelerID is the gin context key for the authenticated labeler.
const ContextLabelerID = "labelerID"

// AuthRequired returns a Gin middleware function that validates JWT tokens
// signed with secret and stores the token subject as the labeler id.
func AuthRequired(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		// 1. Get Authorization header
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: "missing bearer token"})
			return
		}
		tokenStr := strings.TrimPrefix(auth, "Bearer ")

		if len(key) == 0 {
			// Server misconfiguration (JWT_SECRET not set)
			c.AbortWithStatusJSON(http.StatusInternalServerError, api.ErrorResponse{Error: "server misconfigured"})
			return
		}

		// 2. Parse and verify JWT signature (only HMAC allowed)
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return key, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: "invalid token"})
			return
		}

		// 3. Extract the subject
		sub, err := token.Claims.GetSubject()
		if err != nil || sub == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: "token has no subject"})
			return
		}
		c.Set(ContextLabelerID, sub)

		c.Next()
	}
}

// LabelerID returns the labeler id set by AuthRequired, or "" when the
// request was not authenticated.
func LabelerID(c *gin.Context) string {
	return c.GetString(ContextLabelerID)
}

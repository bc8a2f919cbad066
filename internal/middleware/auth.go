package middleware

import (
	"errors"
	"net/http"
	"strings"

	pkgAuth "casino-core/pkg/auth"

	"github.com/gin-gonic/gin"
)

const (
	ContextUserIDKey  = "userID"
	ContextAdminIDKey = "adminID"
)

// AuthRequired gates player endpoints on a user-scope bearer token.
func AuthRequired() gin.HandlerFunc {
	return requireScope(pkgAuth.ParseUserToken, ContextUserIDKey)
}

// AdminAuthRequired gates the operator surface on an admin-scope token.
// A user token never passes: the parser checks the scope claim.
func AdminAuthRequired() gin.HandlerFunc {
	return requireScope(pkgAuth.ParseAdminToken, ContextAdminIDKey)
}

func requireScope(parse func(string) (*pkgAuth.Claims, error), ctxKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		claims, err := parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ctxKey, claims.SubjectID)
		c.Next()
	}
}

func extractBearerToken(authHeader string) (string, error) {
	if strings.TrimSpace(authHeader) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
	"github.com/noah-isme/adg-admissions-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// JWTCookieName is read when no Authorization header is sent, so the
// form style pages work with the LMS session cookie.
const JWTCookieName = "edx-jwt-cookie"

type authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.JWTClaims, error)
}

// JWT protects routes by requiring a valid access token.
func JWT(auth authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		claims, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// OptionalJWT attaches claims when present but does not block.
func OptionalJWT(auth authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			c.Next()
			return
		}
		if claims, err := auth.Authenticate(c.Request.Context(), token); err == nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	}
}

// CurrentUser returns the claims attached by JWT, or nil.
func CurrentUser(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if cookie, err := c.Cookie(JWTCookieName); err == nil && cookie != "" {
			return cookie, nil
		}
		return "", appErrors.ErrUnauthorized
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

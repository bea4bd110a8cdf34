package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"counselmeet-backend/pkg/constants"
	"counselmeet-backend/pkg/jwt"
	"counselmeet-backend/pkg/logger"
	"counselmeet-backend/pkg/response"
)

// RevocationChecker defines interface for checking if a token is revoked (blacklisted)
type RevocationChecker interface {
	IsTokenRevoked(ctx context.Context, tokenString string) (bool, error)
}

// AuthMiddleware rejects requests without a valid, unrevoked bearer token.
// On success it sets user_id (uuid.UUID), username, and role in the Gin context.
func AuthMiddleware(jwtManager *jwt.JWTManager, revocationChecker RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		claims, err := authenticate(c, jwtManager, revocationChecker, tokenString)
		if err != nil {
			response.Unauthorized(c, err.Error())
			c.Abort()
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalAuth sets the identity when a valid token is presented and never rejects.
// Guests reach the signaling endpoint through it.
func OptionalAuth(jwtManager *jwt.JWTManager, revocationChecker RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			// Browsers cannot set headers on websocket upgrades
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.Next()
			return
		}

		claims, err := authenticate(c, jwtManager, revocationChecker, tokenString)
		if err != nil {
			logger.Debug("Ignoring invalid optional token", zap.Error(err))
			c.Next()
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

// RequireRole allows only identities carrying the given role
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != role {
			response.Forbidden(c, "Insufficient role")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin is RequireRole for the admin role
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(constants.RoleAdmin)
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

type authError string

func (e authError) Error() string { return string(e) }

func authenticate(c *gin.Context, jwtManager *jwt.JWTManager, revocationChecker RevocationChecker, tokenString string) (*jwt.Claims, error) {
	claims, err := jwtManager.ValidateToken(tokenString)
	if err != nil {
		return nil, authError("Invalid token")
	}

	if revocationChecker != nil {
		revoked, err := revocationChecker.IsTokenRevoked(c.Request.Context(), tokenString)
		if err != nil {
			// Fail open: the signature already checked out
			logger.Warn("Token revocation check failed", zap.Error(err))
			return claims, nil
		}
		if revoked {
			return nil, authError("Token revoked")
		}
	}

	return claims, nil
}

func setIdentity(c *gin.Context, claims *jwt.Claims) {
	c.Set("user_id", claims.UserID)
	c.Set("username", claims.Username)
	c.Set("role", claims.Role)
}

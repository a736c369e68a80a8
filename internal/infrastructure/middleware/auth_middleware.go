package middleware

import (
	"streamfy/internal/core/domain"
	"streamfy/internal/core/services"
	"streamfy/pkg/errors"
	rlog "streamfy/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	ContextKeyIdentity = "identity"
	ContextKeyUserID   = "user_id"
	ContextKeyUsername = "username"
)

// AuthMiddleware requires a valid bearer token and stores the caller's
// identity on the gin context.
func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := services.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Error(errors.NewUnauthorizedError("authorization header required"))
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			c.Error(errors.NewUnauthorizedError(err.Error()).WithCause(err))
			c.Abort()
			return
		}

		setIdentity(c, claims.Identity())
		c.Next()
	}
}

// OptionalAuthMiddleware records the identity when a valid token is
// present and otherwise lets the request through anonymously.
func OptionalAuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := services.BearerToken(c.GetHeader("Authorization")); ok {
			if claims, err := authService.ValidateToken(token); err == nil {
				setIdentity(c, claims.Identity())
			}
		}
		c.Next()
	}
}

func setIdentity(c *gin.Context, identity domain.Identity) {
	c.Set(ContextKeyIdentity, identity)
	c.Set(ContextKeyUserID, string(identity.UserID))
	c.Set(ContextKeyUsername, identity.DisplayName)
	c.Request = c.Request.WithContext(rlog.WithUserID(c.Request.Context(), string(identity.UserID)))
}

// IdentityFrom returns the identity stored by the auth middleware.
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(ContextKeyIdentity)
	if !ok {
		return domain.Identity{}, false
	}
	identity, ok := v.(domain.Identity)
	return identity, ok
}

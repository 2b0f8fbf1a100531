package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"campus-library/internal/models"
)

const (
	CtxClaimsKey = "auth_claims"
	CtxActorKey  = "auth_actor"
)

// LookupFunc loads the current state of an account.
type LookupFunc func(ctx context.Context, id uuid.UUID) (*models.User, error)

// AuthMiddleware requires a bearer token and stores the caller's Actor on the
// context. With a lookup it also rejects tokens of accounts that were
// deleted or deactivated after the token was issued, and picks up role changes.
func AuthMiddleware(tokens TokenService, lookup LookupFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := tokens.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		actor, err := claims.Actor()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if lookup != nil {
			u, err := lookup(c.Request.Context(), actor.UserID)
			if err != nil || !u.IsActive {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			actor.Role = u.Role
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxActorKey, actor)
		c.Next()
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers on a
// websocket handshake, so an upgrade request may pass access_token instead.
func bearerToken(c *gin.Context) (string, bool) {
	if h := c.GetHeader("Authorization"); h != "" {
		if !strings.HasPrefix(strings.ToLower(h), "bearer ") {
			return "", false
		}
		raw := strings.TrimSpace(h[len("Bearer "):])
		return raw, raw != ""
	}
	if websocket.IsWebSocketUpgrade(c.Request) {
		if raw := c.Query("access_token"); raw != "" {
			return raw, true
		}
	}
	return "", false
}

// RequireAdmin must run after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok || !actor.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

// MustGetClaims returns the token claims AuthMiddleware stored on c. It panics
// when called on a route that is not behind AuthMiddleware.
func MustGetClaims(c *gin.Context) *Claims {
	claims, ok := c.MustGet(CtxClaimsKey).(*Claims)
	if !ok {
		panic("auth: claims of unexpected type on context")
	}
	return claims
}

// ActorFrom returns the identity AuthMiddleware stored on c.
func ActorFrom(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(CtxActorKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}

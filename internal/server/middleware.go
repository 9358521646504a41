package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/mystictxt/internal/auth"
	obscontext "github.com/smallbiznis/mystictxt/internal/observability/context"
)

const (
	contextActorKey = "actor"

	// queryTokenParam carries the bearer token for websocket upgrades, which
	// browsers cannot send headers with.
	queryTokenParam = "access_token"
)

// AuthRequired resolves the bearer token into an actor for the rest of the chain.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := auth.BearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			raw = strings.TrimSpace(c.Query(queryTokenParam))
		}
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		actor, err := s.tokens.Verify(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := auth.WithActor(c.Request.Context(), actor)
		ctx = obscontext.WithActor(ctx, string(actor.Role), actor.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextActorKey, actor)
		c.Next()
	}
}

// RequireRole rejects actors whose role is not listed.
func RequireRole(roles ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		for _, role := range roles {
			if actor.Role == role {
				c.Next()
				return
			}
		}
		AbortWithError(c, ErrForbidden)
	}
}

func actorFrom(c *gin.Context) (auth.Actor, bool) {
	if value, ok := c.Get(contextActorKey); ok {
		if actor, ok := value.(auth.Actor); ok && actor.Valid() {
			return actor, true
		}
	}
	return auth.ActorFromContext(c.Request.Context())
}

// mustActor aborts the request when no actor is attached.
func mustActor(c *gin.Context) (auth.Actor, bool) {
	actor, ok := actorFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return auth.Actor{}, false
	}
	return actor, true
}

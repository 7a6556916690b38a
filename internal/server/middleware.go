package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/adbilling/internal/actorcontext"
	"github.com/smallbiznis/adbilling/pkg/telemetry/correlation"
)

// Identity is resolved by the upstream gateway and forwarded in these headers.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// ActorRequired attaches the forwarded actor and a correlation id to the
// request context.
func ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorcontext.Actor{
			Type: actorcontext.ActorUser,
			ID:   strings.TrimSpace(c.GetHeader(HeaderActorID)),
			Role: strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole))),
		}
		if !actor.Valid() || actor.Role == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		ctx, cid := correlation.EnsureCorrelationID(c.Request.Context(), c.GetHeader(correlation.Header))
		c.Header(correlation.Header, cid)
		c.Request = c.Request.WithContext(actorcontext.WithActor(ctx, actor))
		c.Next()
	}
}

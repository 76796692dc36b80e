package auth

import (
	"net/http"
	"strings"

	"github.com/emberhold-oss/keep/internal/models"
	"github.com/emberhold-oss/keep/internal/workflow"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const actorKey = "actor"

// Middleware validates the bearer token and stores the actor on the context.
func Middleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "unauthorized",
				Message: "Missing or malformed authorization header",
			})
			return
		}

		claims, err := ParseToken(secret, parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "unauthorized",
				Message: "Invalid or expired token",
			})
			return
		}

		c.Set(actorKey, workflow.Actor{
			ID:       uuid.MustParse(claims.Subject),
			Username: claims.Username,
			Rank:     claims.GuildRank,
		})
		c.Next()
	}
}

// RequireLeadership gates an endpoint to the leadership tier. Must run after
// Middleware.
func RequireLeadership() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !models.IsLeadershipRank(CurrentActor(c).Rank) {
			c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{
				Error:   "not_authorized",
				Message: "Leadership rank required",
			})
			return
		}
		c.Next()
	}
}

// CurrentActor returns the authenticated actor set by Middleware.
func CurrentActor(c *gin.Context) workflow.Actor {
	return c.MustGet(actorKey).(workflow.Actor)
}

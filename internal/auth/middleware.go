package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"campusattend/internal/attendance"
)

const actorKey = "actor"

// Authenticate enforces bearer JWT tokens signed with HS256 and rejects
// users the directory reports as inactive.
func Authenticate(signingKey, issuer string, dir attendance.Directory, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		active, err := dir.IsActive(c.Request.Context(), claims.Subject)
		if err != nil {
			log.Error("directory lookup failed", "user", claims.Subject, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account inactive"})
			return
		}
		c.Set(actorKey, claims.Actor())
		c.Next()
	}
}

// RequireRole lets through only actors holding one of roles.
func RequireRole(roles ...attendance.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := ActorFrom(c)
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}

// ActorFrom returns the authenticated actor, or the zero Actor.
func ActorFrom(c *gin.Context) attendance.Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return attendance.Actor{}
	}
	actor, _ := v.(attendance.Actor)
	return actor
}

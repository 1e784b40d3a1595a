package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"gopherai-docqa/internal/transport/http/response"
)

const (
	OwnerHeader        = "X-Owner-ID"
	ContextOwnerIDKey  = "owner_id"
	maxOwnerHeaderSize = 64
)

// RequireOwner scopes the request to the tenant named in X-Owner-ID.
// Authentication happens in front of this service.
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := strings.TrimSpace(c.GetHeader(OwnerHeader))
		if owner == "" {
			response.Error(c, 401, response.CodeUnauthorized, "missing "+OwnerHeader+" header")
			c.Abort()
			return
		}
		if len(owner) > maxOwnerHeaderSize {
			response.Error(c, 401, response.CodeUnauthorized, "invalid "+OwnerHeader+" header")
			c.Abort()
			return
		}

		c.Set(ContextOwnerIDKey, owner)
		c.Next()
	}
}

func OwnerID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextOwnerIDKey)
	if !ok {
		return "", false
	}
	owner, ok := v.(string)
	return owner, ok && owner != ""
}

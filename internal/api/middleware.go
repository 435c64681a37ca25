package api

import (
	"booking-service/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	headerUserID  = "X-User-ID"
	headerGuestID = "X-Guest-ID"

	identityKey = "identity"
)

// identityMiddleware resolves the caller from the gateway's identity headers
func (h *Handler) identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := h.identityService.Resolve(c.Request.Context(), c.GetHeader(headerUserID), c.GetHeader(headerGuestID))
		if err != nil {
			h.respondError(c, err)
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

func callerFrom(c *gin.Context) models.Identity {
	identity, _ := c.MustGet(identityKey).(models.Identity)
	return identity
}

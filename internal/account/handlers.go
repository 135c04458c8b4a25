package account

import (
	"github.com/gin-gonic/gin"

	"github.com/guildecon/economy-api/pkg/response"
)

// GinHandlers contains HTTP handlers for account endpoints.
type GinHandlers struct {
	store *Store
}

// NewGinHandlers creates a new set of HTTP handlers for account endpoints.
func NewGinHandlers(store *Store) *GinHandlers {
	return &GinHandlers{store: store}
}

// MeHandler handles GET requests for the caller's own account document.
func (h *GinHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		guildID := c.GetString("guildID")
		if userID == "" || guildID == "" {
			response.Unauthorized(c, "Missing identity in token")
			return
		}

		snap, err := h.store.Snapshot(c.Request.Context(), userID, guildID)
		response.Handle(c, snap, err)
	}
}

package market

import (
	"github.com/gin-gonic/gin"

	"github.com/guildecon/economy-api/pkg/response"
)

// GinHandlers contains HTTP handlers for marketplace endpoints.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for marketplace
// endpoints.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// BrowseListingsHandler handles GET requests for active listings in the
// caller's guild, cheapest first. Optional query parameter: item_id.
func (h *GinHandlers) BrowseListingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		guildID := c.GetString("guildID")
		if guildID == "" {
			response.Unauthorized(c, "Missing guild in token")
			return
		}

		listings, err := h.service.Listings().ActiveByGuild(c.Request.Context(), guildID, c.Query("item_id"), 50)
		response.Handle(c, listings, err)
	}
}

// MyListingsHandler handles GET requests for the caller's own listings.
func (h *GinHandlers) MyListingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		guildID := c.GetString("guildID")
		if userID == "" || guildID == "" {
			response.Unauthorized(c, "Missing identity in token")
			return
		}

		listings, err := h.service.Listings().BySeller(c.Request.Context(), guildID, userID, false)
		response.Handle(c, listings, err)
	}
}

// CreateListingHandler handles POST requests to list an item for sale.
// The seller identity comes from the token, never the body.
func (h *GinHandlers) CreateListingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		req.SellerID = c.GetString("userID")
		req.GuildID = c.GetString("guildID")
		if req.SellerID == "" || req.GuildID == "" {
			response.Unauthorized(c, "Missing identity in token")
			return
		}

		listing, err := h.service.List(c.Request.Context(), req)
		response.Handle(c, listing, err)
	}
}

// BuyListingHandler handles POST requests to purchase from a listing.
// URL parameter: listing_id.
func (h *GinHandlers) BuyListingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BuyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		req.BuyerID = c.GetString("userID")
		req.GuildID = c.GetString("guildID")
		req.ListingID = c.Param("listing_id")
		if req.BuyerID == "" || req.GuildID == "" {
			response.Unauthorized(c, "Missing identity in token")
			return
		}

		receipt, err := h.service.Buy(c.Request.Context(), req)
		response.Handle(c, receipt, err)
	}
}

// CancelListingHandler handles POST requests to cancel a listing. The
// override path requires the moderator permission on the token.
func (h *GinHandlers) CancelListingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		req := CancelRequest{
			ActorID:   c.GetString("userID"),
			GuildID:   c.GetString("guildID"),
			ListingID: c.Param("listing_id"),
			Override:  hasModeratorPermission(c),
		}
		if req.ActorID == "" || req.GuildID == "" {
			response.Unauthorized(c, "Missing identity in token")
			return
		}

		listing, err := h.service.Cancel(c.Request.Context(), req)
		response.Handle(c, listing, err)
	}
}

func hasModeratorPermission(c *gin.Context) bool {
	perms, ok := c.Get("permissions")
	if !ok {
		return false
	}
	list, ok := perms.([]string)
	if !ok {
		return false
	}
	for _, p := range list {
		if p == "moderator" {
			return true
		}
	}
	return false
}

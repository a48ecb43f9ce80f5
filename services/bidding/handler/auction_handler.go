package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	auction "vehicle-auction/internal/auctionService"
	"vehicle-auction/internal/models"
	"vehicle-auction/services/bidding/helpers"
	"vehicle-auction/utils"
)

type AuctionHandler struct {
	service AuctionServiceInterface
}

func NewAuctionHandler(service AuctionServiceInterface) *AuctionHandler {
	return &AuctionHandler{service: service}
}

// ListAuctionsHandler handles GET /auctions
func (h *AuctionHandler) ListAuctionsHandler(c *gin.Context) {
	q := auction.ListQuery{
		Status:       c.Query("status"),
		Scope:        c.Query("scope"),
		Sort:         c.Query("sort"),
		CreatedAfter: c.Query("created_after"),
	}

	views, err := h.service.List(c.Request.Context(), q, helpers.OptionalUser(c))
	if err != nil {
		helpers.RespondError(c, "ListAuctionsHandler", err, map[string]any{"status": q.Status, "scope": q.Scope})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponses(views), "auctions retrieved successfully")
	helpers.LogSuccess("ListAuctionsHandler", "auctions retrieved successfully", map[string]any{"count": len(views)})
}

// CreateAuctionHandler handles POST /auctions
func (h *AuctionHandler) CreateAuctionHandler(c *gin.Context) {
	seller, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondUnauthenticated(c)
		return
	}

	var req helpers.AuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	view, err := h.service.Create(c.Request.Context(), seller, req.ToInput())
	if err != nil {
		helpers.RespondError(c, "CreateAuctionHandler", err, map[string]any{"seller_id": seller.ID.String()})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewAuctionResponse(view), "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": view.Auction.ID.String(),
		"seller_id":  seller.ID.String(),
	})
}

// ListMyAuctionsHandler handles GET /auctions/mine
func (h *AuctionHandler) ListMyAuctionsHandler(c *gin.Context) {
	seller, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondUnauthenticated(c)
		return
	}

	views, err := h.service.ListMine(c.Request.Context(), seller, c.Query("status"))
	if err != nil {
		helpers.RespondError(c, "ListMyAuctionsHandler", err, map[string]any{"seller_id": seller.ID.String()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponses(views), "auctions retrieved successfully")
}

// ListAllAuctionsHandler handles GET /auctions/manage
func (h *AuctionHandler) ListAllAuctionsHandler(c *gin.Context) {
	admin, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondUnauthenticated(c)
		return
	}

	views, err := h.service.ListAll(c.Request.Context(), admin, c.Query("status"))
	if err != nil {
		helpers.RespondError(c, "ListAllAuctionsHandler", err, nil)
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponses(views), "auctions retrieved successfully")
}

// GetAuctionHandler handles GET /auctions/:id
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	id, ok := helpers.PathID(c, "id", auctionNotFound)
	if !ok {
		return
	}

	view, err := h.service.Get(c.Request.Context(), id, helpers.OptionalUser(c))
	if err != nil {
		helpers.RespondError(c, "GetAuctionHandler", err, map[string]any{"auction_id": id.String()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponse(view), "auction retrieved successfully")
}

// UpdateAuctionHandler handles PATCH /auctions/:id
func (h *AuctionHandler) UpdateAuctionHandler(c *gin.Context) {
	user, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondUnauthenticated(c)
		return
	}
	id, ok := helpers.PathID(c, "id", auctionNotFound)
	if !ok {
		return
	}

	var req helpers.AuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "UpdateAuctionHandler", err)
		return
	}

	view, err := h.service.Update(c.Request.Context(), user, id, req.ToInput())
	if err != nil {
		helpers.RespondError(c, "UpdateAuctionHandler", err, map[string]any{"auction_id": id.String(), "user_id": user.ID.String()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponse(view), "auction updated successfully")
	helpers.LogSuccess("UpdateAuctionHandler", "auction updated successfully", map[string]any{"auction_id": id.String()})
}

// DeleteAuctionHandler handles DELETE /auctions/:id
func (h *AuctionHandler) DeleteAuctionHandler(c *gin.Context) {
	user, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondUnauthenticated(c)
		return
	}
	id, ok := helpers.PathID(c, "id", auctionNotFound)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), user, id); err != nil {
		helpers.RespondError(c, "DeleteAuctionHandler", err, map[string]any{"auction_id": id.String(), "user_id": user.ID.String()})
		return
	}

	c.Status(http.StatusNoContent)
	helpers.LogSuccess("DeleteAuctionHandler", "auction deleted", map[string]any{"auction_id": id.String()})
}

// CloseAuctionHandler handles POST /auctions/:id/close
func (h *AuctionHandler) CloseAuctionHandler(c *gin.Context) {
	h.transition(c, "CloseAuctionHandler", "auction closed", h.service.Close)
}

// CancelAuctionHandler handles POST /auctions/:id/cancel
func (h *AuctionHandler) CancelAuctionHandler(c *gin.Context) {
	h.transition(c, "CancelAuctionHandler", "auction cancelled", h.service.Cancel)
}

func (h *AuctionHandler) transition(c *gin.Context, handlerName, message string, apply func(ctx context.Context, user models.User, id uuid.UUID) (auction.View, error)) {
	user, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondUnauthenticated(c)
		return
	}
	id, ok := helpers.PathID(c, "id", auctionNotFound)
	if !ok {
		return
	}

	view, err := apply(c.Request.Context(), user, id)
	if err != nil {
		helpers.RespondError(c, handlerName, err, map[string]any{"auction_id": id.String(), "user_id": user.ID.String()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponse(view), message)
	helpers.LogSuccess(handlerName, message, map[string]any{"auction_id": id.String(), "status": string(view.Auction.Status)})
}

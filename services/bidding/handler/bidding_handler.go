package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vehicle-auction/services/bidding/helpers"
	"vehicle-auction/utils"
)

const auctionNotFound = "Auction not found"

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// RecordBidHandler handles POST /auctions/:id/bids
func (h *BiddingHandler) RecordBidHandler(c *gin.Context) {
	buyer, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondUnauthenticated(c)
		return
	}
	auctionID, ok := helpers.PathID(c, "id", auctionNotFound)
	if !ok {
		return
	}

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RecordBidHandler", err)
		return
	}
	amount := ""
	if raw := helpers.RawText(req.Amount); raw != nil {
		amount = *raw
	}

	bid, err := h.service.PlaceBid(c.Request.Context(), auctionID, buyer, amount)
	if err != nil {
		helpers.RespondError(c, "RecordBidHandler", err, map[string]any{
			"auction_id": auctionID.String(),
			"buyer_id":   buyer.ID.String(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewBidResponse(bid), "bid recorded successfully")
	helpers.LogSuccess("RecordBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":     bid.ID.String(),
		"auction_id": auctionID.String(),
		"buyer_id":   buyer.ID.String(),
		"amount":     bid.Amount.String(),
	})
}

// GetBidsByAuctionHandler handles GET /auctions/:id/bids
func (h *BiddingHandler) GetBidsByAuctionHandler(c *gin.Context) {
	auctionID, ok := helpers.PathID(c, "id", auctionNotFound)
	if !ok {
		return
	}

	bids, err := h.service.GetBidsForAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetBidsByAuctionHandler", err, map[string]any{"auction_id": auctionID.String()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByAuctionHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID.String(),
		"count":      len(bids),
	})
}

// GetWinningBidHandler handles GET /auctions/:id/best-bid
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID, ok := helpers.PathID(c, "id", auctionNotFound)
	if !ok {
		return
	}

	bid, err := h.service.GetWinningBid(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetWinningBidHandler", err, map[string]any{"auction_id": auctionID.String()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponse(bid), "winning bid retrieved successfully")
	helpers.LogSuccess("GetWinningBidHandler", "winning bid retrieved successfully", map[string]any{
		"bid_id":     bid.ID.String(),
		"auction_id": auctionID.String(),
		"amount":     bid.Amount.String(),
	})
}

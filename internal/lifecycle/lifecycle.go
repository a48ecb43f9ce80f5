// Package lifecycle owns auction status transitions and the bidding window.
package lifecycle

import (
	"time"

	"vehicle-auction/internal/biddingerrors"
	"vehicle-auction/internal/models"
)

// BiddingWindow is the length of an active auction
const BiddingWindow = 24 * time.Hour

// Activate moves a draft auction to active and opens its bidding window at now.
func Activate(a *models.Auction, now time.Time) error {
	if a.Status != models.AuctionDraft {
		return biddingerrors.InvalidState("Only draft auctions can be activated")
	}
	start := now.UTC()
	end := start.Add(BiddingWindow)
	a.StartAt = &start
	a.EndAt = &end
	a.Status = models.AuctionActive
	return nil
}

// Close marks the auction closed. Closing twice is a no-op.
func Close(a *models.Auction) {
	a.Status = models.AuctionClosed
}

// Cancel withdraws a draft or active auction.
func Cancel(a *models.Auction) error {
	switch a.Status {
	case models.AuctionDraft, models.AuctionActive:
		a.Status = models.AuctionCancelled
		return nil
	case models.AuctionCancelled:
		return nil
	}
	return biddingerrors.InvalidState("Closed auctions cannot be cancelled")
}

// IsAcceptingBids reports whether the auction is active and its window has not lapsed.
func IsAcceptingBids(a models.Auction, now time.Time) bool {
	if a.Status != models.AuctionActive {
		return false
	}
	if a.EndAt == nil {
		return true
	}
	return a.EndAt.UTC().After(now.UTC())
}

// HasLapsed reports whether an active auction's window ended at or before now.
func HasLapsed(a models.Auction, now time.Time) bool {
	return a.Status == models.AuctionActive && a.EndAt != nil && !a.EndAt.UTC().After(now.UTC())
}

// IsLocked reports whether the auction has received any bid.
func IsLocked(bidCount int) bool {
	return bidCount > 0
}

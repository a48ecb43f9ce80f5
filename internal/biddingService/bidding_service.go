package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vehicle-auction/internal/biddingerrors"
	"vehicle-auction/internal/lifecycle"
	"vehicle-auction/internal/metrics"
	"vehicle-auction/internal/models"
	"vehicle-auction/internal/money"
	"vehicle-auction/internal/repository"
)

// DefaultQuota is the number of bids one buyer may place on one auction
const DefaultQuota = 2

// Policy selects the bid acceptance rules
type Policy struct {
	// StrictOrdering requires every bid to beat the current best bid.
	// When false any bid at or above the minimum price is accepted.
	StrictOrdering bool
	Quota          int
}

// DefaultPolicy is strict ordering with the default quota
func DefaultPolicy() Policy {
	return Policy{StrictOrdering: true, Quota: DefaultQuota}
}

// BiddingService is the only place bids are accepted or rejected
type BiddingService struct {
	store   repository.Store
	policy  Policy
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a BiddingService
type Option func(*BiddingService)

// WithMetrics records bid outcomes on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *BiddingService) { s.metrics = m }
}

// WithClock overrides the time source used for the bidding window
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) { s.now = now }
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(store repository.Store, policy Policy, opts ...Option) *BiddingService {
	if policy.Quota <= 0 {
		policy.Quota = DefaultQuota
	}
	s := &BiddingService{
		store:  store,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceBid validates and records a buyer's bid, and notifies the seller in the same transaction
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID uuid.UUID, buyer models.User, rawAmount string) (models.Bid, error) {
	start := time.Now()
	defer s.metrics.ObservePlaceBid(start)

	bid, err := s.placeBid(ctx, auctionID, buyer, rawAmount)
	if err != nil {
		s.metrics.IncrementBidsRejected(rejectReason(err))
		return models.Bid{}, err
	}
	s.metrics.IncrementBidsPlaced()
	s.metrics.AddNotificationsCreated(string(models.NotificationResult), 1)
	return bid, nil
}

func (s *BiddingService) placeBid(ctx context.Context, auctionID uuid.UUID, buyer models.User, rawAmount string) (models.Bid, error) {
	if rawAmount == "" {
		return models.Bid{}, fmt.Errorf("service: %w", biddingerrors.Validation("Missing bid amount"))
	}
	if !buyer.IsActive() {
		return models.Bid{}, fmt.Errorf("service: %w", biddingerrors.Permission("Account suspended"))
	}
	if buyer.Role != models.RoleBuyer {
		return models.Bid{}, fmt.Errorf("service: %w", biddingerrors.Permission("Only buyers can place bids"))
	}
	// parsed before the auction row is locked
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: %w", err)
	}

	var bid models.Bid
	err = s.store.Transact(ctx, func(tx repository.Tx) error {
		auction, err := tx.GetAuctionForUpdate(ctx, auctionID)
		if errors.Is(err, biddingerrors.ErrNotFound) {
			return biddingerrors.NotFound("Auction not found")
		}
		if err != nil {
			return fmt.Errorf("failed to load auction %s: %w", auctionID, err)
		}

		now := s.now()
		if auction.Status != models.AuctionActive {
			return biddingerrors.InvalidState("Auction not active")
		}
		if !lifecycle.IsAcceptingBids(auction, now) {
			return biddingerrors.InvalidState("Auction already closed")
		}

		count, err := tx.CountBidsByBuyer(ctx, auctionID, buyer.ID)
		if err != nil {
			return fmt.Errorf("failed to count bids: %w", err)
		}
		if count >= s.policy.Quota {
			return biddingerrors.Quota("Bid limit reached for this auction")
		}

		if amount.LessThan(auction.MinPrice) {
			return biddingerrors.Validation("Bid below minimum price")
		}

		if s.policy.StrictOrdering {
			best, err := tx.GetWinningBid(ctx, auctionID)
			switch {
			case err == nil:
				if amount.LessThanOrEqual(best.Amount) {
					return biddingerrors.Validation("Bid must be higher than current best")
				}
			case !errors.Is(err, biddingerrors.ErrNoBids):
				return fmt.Errorf("failed to check winning bid: %w", err)
			}
		}

		bid = models.Bid{
			AuctionID:   auctionID,
			BuyerID:     buyer.ID,
			Amount:      amount,
			IdxPerBuyer: count + 1,
			CreatedAt:   now,
		}
		if err := tx.CreateBid(ctx, &bid); err != nil {
			if errors.Is(err, biddingerrors.ErrDuplicate) {
				return biddingerrors.Quota("Bid limit reached for this auction")
			}
			return fmt.Errorf("failed to record bid: %w", err)
		}
		bid.BuyerUsername = buyer.Username

		notification := models.Notification{
			UserID:  auction.SellerID,
			Type:    models.NotificationResult,
			Payload: ResultPayload(auction, bid),
		}
		if err := tx.CreateNotification(ctx, &notification); err != nil {
			return fmt.Errorf("failed to create result notification: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: bid on auction %s by buyer %s: %w", auctionID, buyer.ID, err)
	}
	return bid, nil
}

func parseAmount(raw string) (amount decimal.Decimal, err error) {
	amount, err = money.Parse(raw)
	switch {
	case err == nil:
		return amount, nil
	case errors.Is(err, money.ErrMissing):
		return amount, biddingerrors.Validation("Missing bid amount")
	case errors.Is(err, money.ErrNotPositive):
		return amount, biddingerrors.Validation("Bid amount must be positive")
	case errors.Is(err, money.ErrTooLarge):
		return amount, biddingerrors.Validation("Bid amount is too large")
	default:
		return amount, biddingerrors.Validation("Bid amount must be a number")
	}
}

// ResultPayload is the snapshot of a new bid sent to the seller
func ResultPayload(auction models.Auction, bid models.Bid) map[string]any {
	return map[string]any{
		"auction_id": auction.ID.String(),
		"latest_bid": map[string]any{
			"id":             bid.ID.String(),
			"amount":         money.String(bid.Amount),
			"buyer_id":       bid.BuyerID.String(),
			"buyer_username": bid.BuyerUsername,
			"created_at":     bid.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

// GetBidsForAuction returns all bids for an auction, highest first
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	if _, err := s.store.GetAuction(ctx, auctionID); err != nil {
		return nil, fmt.Errorf("service: failed to get auction %s: %w", auctionID, notFound(err))
	}

	bids, err := s.store.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// GetWinningBid returns the highest bid for an auction
func (s *BiddingService) GetWinningBid(ctx context.Context, auctionID uuid.UUID) (models.Bid, error) {
	if _, err := s.store.GetAuction(ctx, auctionID); err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, notFound(err))
	}

	winningBid, err := s.store.GetWinningBid(ctx, auctionID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, err)
	}
	return winningBid, nil
}

func notFound(err error) error {
	if errors.Is(err, biddingerrors.ErrNotFound) {
		return biddingerrors.NotFound("Auction not found")
	}
	return err
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, biddingerrors.ErrValidation):
		return "validation"
	case errors.Is(err, biddingerrors.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, biddingerrors.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, biddingerrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, biddingerrors.ErrPermission):
		return "permission_denied"
	default:
		return "internal"
	}
}

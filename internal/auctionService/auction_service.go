package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vehicle-auction/internal/biddingerrors"
	"vehicle-auction/internal/lifecycle"
	"vehicle-auction/internal/metrics"
	"vehicle-auction/internal/models"
	"vehicle-auction/internal/money"
	"vehicle-auction/internal/repository"
)

const (
	// PageSize bounds the public auction listing
	PageSize        = 20
	DefaultCurrency = "EUR"

	certificateField = "certificate image"
)

// Policy holds the auction editing rules
type Policy struct {
	// LockAfterFirstBid forbids edits and deletes once a bid exists
	LockAfterFirstBid bool
}

// Input carries auction fields; nil fields were not supplied
type Input struct {
	Title       *string
	Description *string
	MinPrice    *string
	Currency    *string
	Images      json.RawMessage
	Certificate json.RawMessage
}

// ListQuery is the raw public listing filter
type ListQuery struct {
	Status       string
	Scope        string
	Sort         string
	CreatedAfter string
}

// View is an auction with its derived bid information
type View struct {
	Auction      models.Auction
	BestBid      *models.Bid
	ViewerBid    *models.Bid
	ViewerHasBid bool
}

// AuctionService manages auction listings and their lifecycle
type AuctionService struct {
	store   repository.Store
	policy  Policy
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures an AuctionService
type Option func(*AuctionService)

// WithMetrics records auction activity on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *AuctionService) { s.metrics = m }
}

// WithClock overrides the time source used for activation
func WithClock(now func() time.Time) Option {
	return func(s *AuctionService) { s.now = now }
}

// NewAuctionService creates a new AuctionService instance
func NewAuctionService(store repository.Store, policy Policy, opts ...Option) *AuctionService {
	s := &AuctionService{
		store:  store,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates a listing, activates it and notifies every active buyer in one transaction
func (s *AuctionService) Create(ctx context.Context, seller models.User, in Input) (View, error) {
	if seller.Role != models.RoleSeller && seller.Role != models.RoleAdmin {
		return View{}, fmt.Errorf("service: %w", biddingerrors.Permission("Insufficient permissions"))
	}

	title, err := sanitizeText(in.Title, "title")
	if err != nil {
		return View{}, fmt.Errorf("service: %w", err)
	}
	description, err := sanitizeText(in.Description, "description")
	if err != nil {
		return View{}, fmt.Errorf("service: %w", err)
	}
	minPrice, err := parsePrice(in.MinPrice)
	if err != nil {
		return View{}, fmt.Errorf("service: %w", err)
	}
	currency := DefaultCurrency
	if in.Currency != nil {
		if currency, err = normalizeCurrency(*in.Currency); err != nil {
			return View{}, fmt.Errorf("service: %w", err)
		}
	}
	images, err := NormalizeImages(in.Images)
	if err != nil {
		return View{}, fmt.Errorf("service: %w", err)
	}
	certificate, err := NormalizeSingleImage(in.Certificate, certificateField)
	if err != nil {
		return View{}, fmt.Errorf("service: %w", err)
	}

	auction := models.Auction{
		ID:                  uuid.New(),
		SellerID:            seller.ID,
		Title:               title,
		Description:         description,
		MinPrice:            minPrice,
		Currency:            currency,
		ImageURLs:           images,
		CertificateImageURL: certificate,
		Status:              models.AuctionDraft,
	}
	now := s.now()
	if err := lifecycle.Activate(&auction, now); err != nil {
		return View{}, fmt.Errorf("service: %w", err)
	}
	auction.CreatedAt = now

	var notified int
	err = s.store.Transact(ctx, func(tx repository.Tx) error {
		if err := tx.CreateAuction(ctx, &auction); err != nil {
			return fmt.Errorf("failed to create auction: %w", err)
		}

		buyers, err := tx.ListActiveBuyers(ctx)
		if err != nil {
			return fmt.Errorf("failed to list buyers: %w", err)
		}
		for _, buyer := range buyers {
			n := models.Notification{
				UserID:  buyer.ID,
				Type:    models.NotificationNewAuction,
				Payload: map[string]any{"auction_id": auction.ID.String()},
			}
			if err := tx.CreateNotification(ctx, &n); err != nil {
				return fmt.Errorf("failed to notify buyer %s: %w", buyer.ID, err)
			}
		}
		notified = len(buyers)
		return nil
	})
	if err != nil {
		return View{}, fmt.Errorf("service: create auction for seller %s: %w", seller.ID, err)
	}

	s.metrics.IncrementAuctionsCreated()
	s.metrics.AddNotificationsCreated(string(models.NotificationNewAuction), notified)
	return View{Auction: auction}, nil
}

// List returns the public listing. viewer may be nil for anonymous callers.
func (s *AuctionService) List(ctx context.Context, q ListQuery, viewer *models.User) ([]View, error) {
	filter := models.AuctionFilter{Limit: PageSize, SortFresh: q.Sort == "" || q.Sort == "fresh"}

	status := q.Status
	if status == "" {
		status = string(models.AuctionActive)
	}
	if err := applyStatus(&filter, status); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}

	if q.Scope != "" {
		if q.Scope != "participating" {
			return nil, fmt.Errorf("service: %w", biddingerrors.Validation("Invalid scope filter"))
		}
		if viewer == nil {
			return nil, fmt.Errorf("service: %w", biddingerrors.Unauthenticated("Missing or invalid token"))
		}
		if viewer.Role != models.RoleBuyer {
			return nil, fmt.Errorf("service: %w", biddingerrors.Permission("Only buyers can view this scope"))
		}
		filter.BidderID = &viewer.ID
	}

	if q.CreatedAfter != "" {
		createdAfter, err := ParseTimestamp(q.CreatedAfter)
		if err != nil {
			return nil, fmt.Errorf("service: %w", biddingerrors.Validation("Invalid created_after timestamp"))
		}
		filter.CreatedAfter = &createdAfter
	}

	return s.listViews(ctx, filter, viewer)
}

// ListMine returns the caller's own auctions, newest first
func (s *AuctionService) ListMine(ctx context.Context, seller models.User, status string) ([]View, error) {
	if seller.Role != models.RoleSeller && seller.Role != models.RoleAdmin {
		return nil, fmt.Errorf("service: %w", biddingerrors.Permission("Insufficient permissions"))
	}
	filter := models.AuctionFilter{SellerID: &seller.ID}
	if err := applyStatus(&filter, orAll(status)); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	return s.listViews(ctx, filter, nil)
}

// ListAll returns every auction for administrators
func (s *AuctionService) ListAll(ctx context.Context, admin models.User, status string) ([]View, error) {
	if admin.Role != models.RoleAdmin {
		return nil, fmt.Errorf("service: %w", biddingerrors.Permission("Insufficient permissions"))
	}
	var filter models.AuctionFilter
	if err := applyStatus(&filter, orAll(status)); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	return s.listViews(ctx, filter, nil)
}

// Get returns one auction with its best bid and the viewer's own bid
func (s *AuctionService) Get(ctx context.Context, id uuid.UUID, viewer *models.User) (View, error) {
	auction, err := s.store.GetAuction(ctx, id)
	if err != nil {
		return View{}, fmt.Errorf("service: failed to get auction %s: %w", id, auctionNotFound(err))
	}
	return s.view(ctx, auction, viewer)
}

// Update applies the supplied fields to an auction
func (s *AuctionService) Update(ctx context.Context, user models.User, id uuid.UUID, in Input) (View, error) {
	var updated models.Auction
	err := s.store.Transact(ctx, func(tx repository.Tx) error {
		auction, err := s.loadForChange(ctx, tx, user, id, "Cannot edit another seller's auction")
		if err != nil {
			return err
		}
		if err := s.checkLock(ctx, tx, id, "Auction cannot be edited after the first bid"); err != nil {
			return err
		}
		if err := applyInput(&auction, in); err != nil {
			return err
		}
		if err := tx.UpdateAuction(ctx, &auction); err != nil {
			return fmt.Errorf("failed to update auction: %w", err)
		}
		updated = auction
		return nil
	})
	if err != nil {
		return View{}, fmt.Errorf("service: update auction %s: %w", id, err)
	}
	return s.view(ctx, updated, nil)
}

// Delete removes an auction and all of its bids
func (s *AuctionService) Delete(ctx context.Context, user models.User, id uuid.UUID) error {
	err := s.store.Transact(ctx, func(tx repository.Tx) error {
		if _, err := s.loadForChange(ctx, tx, user, id, "Cannot delete another seller's auction"); err != nil {
			return err
		}
		if err := s.checkLock(ctx, tx, id, "Auction cannot be deleted after the first bid"); err != nil {
			return err
		}
		if err := tx.DeleteAuction(ctx, id); err != nil {
			return fmt.Errorf("failed to delete auction: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("service: delete auction %s: %w", id, err)
	}
	return nil
}

// Close ends bidding on an auction
func (s *AuctionService) Close(ctx context.Context, user models.User, id uuid.UUID) (View, error) {
	return s.transition(ctx, user, id, "Cannot close another seller's auction", func(a *models.Auction) error {
		lifecycle.Close(a)
		return nil
	})
}

// Cancel withdraws an auction that has not closed
func (s *AuctionService) Cancel(ctx context.Context, user models.User, id uuid.UUID) (View, error) {
	return s.transition(ctx, user, id, "Cannot cancel another seller's auction", lifecycle.Cancel)
}

func (s *AuctionService) transition(ctx context.Context, user models.User, id uuid.UUID, foreignMsg string, apply func(*models.Auction) error) (View, error) {
	var updated models.Auction
	err := s.store.Transact(ctx, func(tx repository.Tx) error {
		auction, err := s.loadForChange(ctx, tx, user, id, foreignMsg)
		if err != nil {
			return err
		}
		if err := apply(&auction); err != nil {
			return err
		}
		if err := tx.UpdateAuction(ctx, &auction); err != nil {
			return fmt.Errorf("failed to update auction status: %w", err)
		}
		updated = auction
		return nil
	})
	if err != nil {
		return View{}, fmt.Errorf("service: change status of auction %s: %w", id, err)
	}
	return s.view(ctx, updated, nil)
}

// loadForChange locks the auction and checks the caller may modify it
func (s *AuctionService) loadForChange(ctx context.Context, tx repository.Tx, user models.User, id uuid.UUID, foreignMsg string) (models.Auction, error) {
	auction, err := tx.GetAuctionForUpdate(ctx, id)
	if err != nil {
		return models.Auction{}, auctionNotFound(err)
	}
	switch user.Role {
	case models.RoleAdmin:
	case models.RoleSeller:
		if auction.SellerID != user.ID {
			return models.Auction{}, biddingerrors.Permission(foreignMsg)
		}
	default:
		return models.Auction{}, biddingerrors.Permission("Insufficient permissions")
	}
	return auction, nil
}

func (s *AuctionService) checkLock(ctx context.Context, tx repository.Tx, id uuid.UUID, msg string) error {
	if !s.policy.LockAfterFirstBid {
		return nil
	}
	bids, err := tx.GetBidsByAuction(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load bids: %w", err)
	}
	if lifecycle.IsLocked(len(bids)) {
		return biddingerrors.InvalidState(msg)
	}
	return nil
}

func (s *AuctionService) listViews(ctx context.Context, filter models.AuctionFilter, viewer *models.User) ([]View, error) {
	auctions, err := s.store.ListAuctions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions: %w", err)
	}
	views := make([]View, 0, len(auctions))
	for _, a := range auctions {
		v, err := s.view(ctx, a, viewer)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *AuctionService) view(ctx context.Context, auction models.Auction, viewer *models.User) (View, error) {
	bids, err := s.store.GetBidsByAuction(ctx, auction.ID)
	if err != nil {
		return View{}, fmt.Errorf("service: failed to get bids for auction %s: %w", auction.ID, err)
	}
	v := View{Auction: auction}
	// bids arrive highest first
	if len(bids) > 0 {
		best := bids[0]
		v.BestBid = &best
	}
	if viewer != nil {
		for _, b := range bids {
			if b.BuyerID == viewer.ID {
				mine := b
				v.ViewerBid = &mine
				v.ViewerHasBid = true
				break
			}
		}
	}
	return v, nil
}

func applyInput(a *models.Auction, in Input) error {
	applied := false
	if in.Title != nil {
		title, err := sanitizeText(in.Title, "title")
		if err != nil {
			return err
		}
		a.Title, applied = title, true
	}
	if in.Description != nil {
		description, err := sanitizeText(in.Description, "description")
		if err != nil {
			return err
		}
		a.Description, applied = description, true
	}
	if in.MinPrice != nil {
		price, err := parsePrice(in.MinPrice)
		if err != nil {
			return err
		}
		a.MinPrice, applied = price, true
	}
	if in.Currency != nil {
		currency, err := normalizeCurrency(*in.Currency)
		if err != nil {
			return err
		}
		a.Currency, applied = currency, true
	}
	if in.Images != nil {
		images, err := NormalizeImages(in.Images)
		if err != nil {
			return err
		}
		a.ImageURLs, applied = images, true
	}
	if in.Certificate != nil {
		certificate, err := NormalizeSingleImage(in.Certificate, certificateField)
		if err != nil {
			return err
		}
		a.CertificateImageURL, applied = certificate, true
	}
	if !applied {
		return biddingerrors.Validation("No valid updates provided")
	}
	return nil
}

func applyStatus(filter *models.AuctionFilter, status string) error {
	if status == "all" {
		filter.Status = nil
		return nil
	}
	st := models.AuctionStatus(status)
	if !st.Valid() {
		return biddingerrors.Validation("Invalid status filter")
	}
	filter.Status = &st
	return nil
}

func orAll(status string) string {
	if status == "" {
		return "all"
	}
	return status
}

func sanitizeText(value *string, field string) (string, error) {
	if value == nil {
		return "", biddingerrors.Validation("Missing " + field)
	}
	sanitized := strings.TrimSpace(*value)
	if sanitized == "" {
		return "", biddingerrors.Validation("Missing " + field)
	}
	return sanitized, nil
}

func normalizeCurrency(value string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	if len(normalized) != 3 {
		return "", biddingerrors.Validation("Currency must be a three-letter code")
	}
	for _, r := range normalized {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			return "", biddingerrors.Validation("Currency must be a three-letter code")
		}
	}
	return normalized, nil
}

func parsePrice(raw *string) (decimal.Decimal, error) {
	if raw == nil {
		return decimal.Decimal{}, biddingerrors.Validation("Missing minimum price")
	}
	price, err := money.Parse(*raw)
	switch {
	case err == nil:
		return price, nil
	case errors.Is(err, money.ErrMissing):
		return decimal.Decimal{}, biddingerrors.Validation("Missing minimum price")
	case errors.Is(err, money.ErrNotPositive):
		return decimal.Decimal{}, biddingerrors.Validation("Minimum price must be positive")
	case errors.Is(err, money.ErrTooLarge):
		return decimal.Decimal{}, biddingerrors.Validation("Minimum price is too large")
	default:
		return decimal.Decimal{}, biddingerrors.Validation("Minimum price must be numeric")
	}
}

// ParseTimestamp reads an RFC3339 timestamp; a value without offset is taken as UTC
func ParseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}

func auctionNotFound(err error) error {
	if errors.Is(err, biddingerrors.ErrNotFound) {
		return biddingerrors.NotFound("Auction not found")
	}
	return err
}

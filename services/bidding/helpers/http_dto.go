package helpers

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	auction "vehicle-auction/internal/auctionService"
	"vehicle-auction/internal/models"
	"vehicle-auction/internal/money"
)

// Request DTOs

// PlaceBidRequest accepts the amount as a JSON number or a numeric string
type PlaceBidRequest struct {
	Amount json.RawMessage `json:"amount"`
}

// AuctionRequest is shared by create and update; absent fields stay nil
type AuctionRequest struct {
	Title               *string         `json:"title"`
	Description         *string         `json:"description"`
	MinPrice            json.RawMessage `json:"min_price"`
	Currency            *string         `json:"currency"`
	Images              json.RawMessage `json:"images"`
	ImageURLs           json.RawMessage `json:"image_urls"`
	CertificateImage    json.RawMessage `json:"certificate_image"`
	CertificateImageURL json.RawMessage `json:"certificate_image_url"`
}

// ToInput converts the request; image_urls wins over images when both are sent
func (r AuctionRequest) ToInput() auction.Input {
	in := auction.Input{
		Title:       r.Title,
		Description: r.Description,
		MinPrice:    RawText(r.MinPrice),
		Currency:    r.Currency,
		Images:      r.Images,
		Certificate: FirstPresent(r.CertificateImage, r.CertificateImageURL),
	}
	if r.ImageURLs != nil {
		in.Images = r.ImageURLs
	}
	if in.Certificate == nil && (r.CertificateImage != nil || r.CertificateImageURL != nil) {
		in.Certificate = json.RawMessage("null")
	}
	return in
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	UsernameOrEmail string `json:"username_or_email"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
}

// Identifier is the first non-empty login name supplied
func (r LoginRequest) Identifier() string {
	for _, v := range []string{r.UsernameOrEmail, r.Username, r.Email} {
		if v != "" {
			return v
		}
	}
	return ""
}

type RefreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

type DeviceRequest struct {
	ExpoPushToken string `json:"expo_push_token" binding:"required"`
}

type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UpdateUserRequest struct {
	Role   *string `json:"role"`
	Status *string `json:"status"`
}

type InviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type ResetPasswordRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// Response DTOs

type BidResponse struct {
	ID            string      `json:"id"`
	AuctionID     string      `json:"auction_id"`
	Amount        json.Number `json:"amount"`
	BuyerID       string      `json:"buyer_id"`
	BuyerUsername *string     `json:"buyer_username"`
	CreatedAt     string      `json:"created_at"`
}

type AuctionResponse struct {
	ID                  string       `json:"id"`
	SellerID            string       `json:"seller_id"`
	Title               string       `json:"title"`
	Description         string       `json:"description"`
	MinPrice            json.Number  `json:"min_price"`
	Currency            string       `json:"currency"`
	Status              string       `json:"status"`
	CreatedAt           *string      `json:"created_at"`
	StartAt             *string      `json:"start_at"`
	EndAt               *string      `json:"end_at"`
	BestBid             *BidResponse `json:"best_bid"`
	ViewerBid           *BidResponse `json:"viewer_bid"`
	ViewerHasBid        bool         `json:"viewer_has_bid"`
	ImageURLs           []string     `json:"image_urls"`
	CertificateImageURL string       `json:"certificate_image_url"`
}

type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
}

type SessionResponse struct {
	Access  string       `json:"access"`
	Refresh string       `json:"refresh"`
	User    UserResponse `json:"user"`
}

type TokenResponse struct {
	Access string `json:"access"`
}

type DeviceResponse struct {
	DeviceID string `json:"device_id"`
}

// Amount renders a fixed two-decimal JSON number
func Amount(d decimal.Decimal) json.Number {
	return json.Number(money.String(d))
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func optionalTimestamp(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := timestamp(*t)
	return &s
}

func NewBidResponse(b models.Bid) BidResponse {
	resp := BidResponse{
		ID:        b.ID.String(),
		AuctionID: b.AuctionID.String(),
		Amount:    Amount(b.Amount),
		BuyerID:   b.BuyerID.String(),
		CreatedAt: timestamp(b.CreatedAt),
	}
	if b.BuyerUsername != "" {
		name := b.BuyerUsername
		resp.BuyerUsername = &name
	}
	return resp
}

func NewBidResponses(bids []models.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, NewBidResponse(b))
	}
	return out
}

func optionalBid(b *models.Bid) *BidResponse {
	if b == nil {
		return nil
	}
	resp := NewBidResponse(*b)
	return &resp
}

func NewAuctionResponse(v auction.View) AuctionResponse {
	a := v.Auction
	images := a.ImageURLs
	if images == nil {
		images = []string{}
	}
	return AuctionResponse{
		ID:                  a.ID.String(),
		SellerID:            a.SellerID.String(),
		Title:               a.Title,
		Description:         a.Description,
		MinPrice:            Amount(a.MinPrice),
		Currency:            a.Currency,
		Status:              string(a.Status),
		CreatedAt:           optionalTimestamp(&a.CreatedAt),
		StartAt:             optionalTimestamp(a.StartAt),
		EndAt:               optionalTimestamp(a.EndAt),
		BestBid:             optionalBid(v.BestBid),
		ViewerBid:           optionalBid(v.ViewerBid),
		ViewerHasBid:        v.ViewerHasBid,
		ImageURLs:           images,
		CertificateImageURL: a.CertificateImageURL,
	}
}

func NewAuctionResponses(views []auction.View) []AuctionResponse {
	out := make([]AuctionResponse, 0, len(views))
	for _, v := range views {
		out = append(out, NewAuctionResponse(v))
	}
	return out
}

func NewUserResponse(u models.User) UserResponse {
	resp := UserResponse{
		ID:       u.ID.String(),
		Email:    u.Email,
		Username: u.Username,
		Role:     string(u.Role),
		Status:   string(u.Status),
	}
	if !u.CreatedAt.IsZero() {
		resp.CreatedAt = timestamp(u.CreatedAt)
	}
	return resp
}

func NewUserResponses(users []models.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, NewUserResponse(u))
	}
	return out
}

type RegisteredResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func NewRegisteredResponse(u models.User) RegisteredResponse {
	return RegisteredResponse{ID: u.ID.String(), Username: u.Username, Role: string(u.Role)}
}

func NewSessionResponse(access, refresh string, u models.User) SessionResponse {
	return SessionResponse{Access: access, Refresh: refresh, User: NewUserResponse(u)}
}

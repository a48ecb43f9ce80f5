package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserRole controls what a user may do in the marketplace
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleSeller UserRole = "seller"
	RoleBuyer  UserRole = "buyer"
)

// Valid reports whether r is a known role
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleSeller, RoleBuyer:
		return true
	}
	return false
}

// UserStatus gates access to authenticated operations
type UserStatus string

const (
	StatusActive    UserStatus = "active"
	StatusSuspended UserStatus = "suspended"
)

// Valid reports whether s is a known status
func (s UserStatus) Valid() bool {
	return s == StatusActive || s == StatusSuspended
}

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

const (
	AuctionDraft     AuctionStatus = "draft"
	AuctionActive    AuctionStatus = "active"
	AuctionClosed    AuctionStatus = "closed"
	AuctionCancelled AuctionStatus = "cancelled"
)

// Valid reports whether s is a known auction status
func (s AuctionStatus) Valid() bool {
	switch s {
	case AuctionDraft, AuctionActive, AuctionClosed, AuctionCancelled:
		return true
	}
	return false
}

// NotificationType selects how a notification is rendered
type NotificationType string

const (
	NotificationNewAuction NotificationType = "new_auction"
	NotificationResult     NotificationType = "result"
)

// User represents a participant in the marketplace
type User struct {
	ID           uuid.UUID  `json:"id" gorm:"type:char(36);primaryKey"`
	Email        string     `json:"email" gorm:"size:255;uniqueIndex;not null"`
	Username     string     `json:"username" gorm:"size:80;uniqueIndex;not null"`
	PasswordHash string     `json:"-" gorm:"size:255;not null"`
	Role         UserRole   `json:"role" gorm:"size:16;not null;index"`
	Status       UserStatus `json:"status" gorm:"size:16;not null;default:active"`
	CreatedAt    time.Time  `json:"created_at"`
}

// IsActive reports whether the user may perform authenticated operations
func (u User) IsActive() bool {
	return u.Status == StatusActive
}

// Auction represents a timed vehicle listing
type Auction struct {
	ID                  uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	SellerID            uuid.UUID       `json:"seller_id" gorm:"type:char(36);not null;index"`
	Title               string          `json:"title" gorm:"size:255;not null"`
	Description         string          `json:"description" gorm:"type:text;not null"`
	MinPrice            decimal.Decimal `json:"min_price" gorm:"type:decimal(10,2);not null"`
	Currency            string          `json:"currency" gorm:"size:3;not null;default:EUR"`
	ImageURLs           []string        `json:"image_urls" gorm:"serializer:json"`
	CertificateImageURL string          `json:"certificate_image_url" gorm:"type:text"`
	Status              AuctionStatus   `json:"status" gorm:"size:16;not null;index"`
	StartAt             *time.Time      `json:"start_at"`
	EndAt               *time.Time      `json:"end_at"`
	CreatedAt           time.Time       `json:"created_at" gorm:"index"`

	Bids []Bid `json:"-" gorm:"foreignKey:AuctionID;constraint:OnDelete:CASCADE"`
}

// Bid represents a buyer's offer on an auction
type Bid struct {
	ID          uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	AuctionID   uuid.UUID       `json:"auction_id" gorm:"type:char(36);not null;uniqueIndex:idx_bid_per_buyer,priority:1"`
	BuyerID     uuid.UUID       `json:"buyer_id" gorm:"type:char(36);not null;uniqueIndex:idx_bid_per_buyer,priority:2"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(10,2);not null"`
	IdxPerBuyer int             `json:"idx_per_buyer" gorm:"not null;uniqueIndex:idx_bid_per_buyer,priority:3"`
	CreatedAt   time.Time       `json:"created_at"`

	// BuyerUsername is filled by readers that join the buyer; never persisted.
	BuyerUsername string `json:"buyer_username,omitempty" gorm:"-"`
}

// Notification is a message addressed to one user
type Notification struct {
	ID        uuid.UUID        `json:"id" gorm:"type:char(36);primaryKey"`
	UserID    uuid.UUID        `json:"user_id" gorm:"type:char(36);not null;index"`
	Type      NotificationType `json:"type" gorm:"size:32;not null"`
	Payload   map[string]any   `json:"payload" gorm:"serializer:json"`
	ReadAt    *time.Time       `json:"read_at"`
	CreatedAt time.Time        `json:"created_at"`
}

// AuditLog is an append-only record of an administrative action
type AuditLog struct {
	ID         uuid.UUID      `json:"id" gorm:"type:char(36);primaryKey"`
	ActorID    uuid.UUID      `json:"actor_id" gorm:"type:char(36);not null;index"`
	Action     string         `json:"action" gorm:"size:255;not null"`
	TargetType string         `json:"target_type" gorm:"size:50;not null"`
	TargetID   string         `json:"target_id" gorm:"size:50;not null"`
	Meta       map[string]any `json:"meta" gorm:"serializer:json"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Device is a registered push endpoint for a user
type Device struct {
	ID            uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	UserID        uuid.UUID `json:"user_id" gorm:"type:char(36);not null;index"`
	ExpoPushToken string    `json:"expo_push_token" gorm:"size:255;uniqueIndex;not null"`
	CreatedAt     time.Time `json:"created_at"`
}

// AuctionFilter narrows auction listings
type AuctionFilter struct {
	// Status is nil for "all"
	Status       *AuctionStatus
	SellerID     *uuid.UUID
	BidderID     *uuid.UUID
	CreatedAfter *time.Time
	SortFresh    bool
	Limit        int
}

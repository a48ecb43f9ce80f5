package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"

	model "vehicle-auction/internal/models"
)

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

// Reader defines the read side of the auction store
type Reader interface {
	GetAuction(ctx context.Context, id uuid.UUID) (model.Auction, error)
	ListAuctions(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error)
	GetBid(ctx context.Context, id uuid.UUID) (model.Bid, error)
	// GetBidsByAuction returns bids ordered by amount, highest first
	GetBidsByAuction(ctx context.Context, auctionID uuid.UUID) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, auctionID uuid.UUID) (model.Bid, error)
	CountBidsByBuyer(ctx context.Context, auctionID, buyerID uuid.UUID) (int, error)
	GetUser(ctx context.Context, id uuid.UUID) (model.User, error)
	// FindUserByLogin matches a username exactly or an email case-insensitively
	FindUserByLogin(ctx context.Context, identifier string) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	ListActiveBuyers(ctx context.Context) ([]model.User, error)
	GetNotification(ctx context.Context, id uuid.UUID) (model.Notification, error)
	ListDevicesByUser(ctx context.Context, userID uuid.UUID) ([]model.Device, error)
	ListAuditLogs(ctx context.Context) ([]model.AuditLog, error)
}

// Tx is a unit of work. Writes become visible to other callers only when the
// surrounding Transact call commits.
type Tx interface {
	Reader
	// GetAuctionForUpdate reads an auction and holds it against concurrent writers until commit
	GetAuctionForUpdate(ctx context.Context, id uuid.UUID) (model.Auction, error)
	CreateAuction(ctx context.Context, auction *model.Auction) error
	UpdateAuction(ctx context.Context, auction *model.Auction) error
	// DeleteAuction removes the auction and every bid placed on it
	DeleteAuction(ctx context.Context, id uuid.UUID) error
	CreateBid(ctx context.Context, bid *model.Bid) error
	CreateUser(ctx context.Context, user *model.User) error
	UpdateUser(ctx context.Context, user *model.User) error
	// CreateNotification persists the row and stages a NotificationCreated event
	CreateNotification(ctx context.Context, n *model.Notification) error
	DeleteNotification(ctx context.Context, id uuid.UUID) error
	// SaveDevice registers a push token, reassigning it if another user owned it
	SaveDevice(ctx context.Context, device *model.Device) error
	AppendAuditLog(ctx context.Context, entry *model.AuditLog) error
}

// Store is the persistence boundary used by the services
type Store interface {
	Reader
	// Transact runs fn in a transaction. Commit hooks fire once after a
	// successful commit; an error from fn rolls back and discards staged events.
	Transact(ctx context.Context, fn func(tx Tx) error) error
	OnCommit(hook CommitHook)
}

// EventKind names a domain event staged during a transaction
type EventKind string

const EventNotificationCreated EventKind = "notification_created"

// Event is a domain event handed to commit hooks
type Event struct {
	Kind           EventKind
	NotificationID uuid.UUID
	UserID         uuid.UUID
	Type           model.NotificationType
}

// CommitHook observes the events of a committed transaction
type CommitHook func(ctx context.Context, events []Event)

// Outbox collects events staged by one transaction
type Outbox struct {
	events []Event
}

// Stage appends an event to the outbox
func (o *Outbox) Stage(e Event) {
	o.events = append(o.events, e)
}

// Drain returns the staged events and empties the outbox
func (o *Outbox) Drain() []Event {
	events := o.events
	o.events = nil
	return events
}

func notificationEvent(n model.Notification) Event {
	return Event{
		Kind:           EventNotificationCreated,
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           n.Type,
	}
}

type hookRegistry struct {
	mu    sync.RWMutex
	hooks []CommitHook
}

func (r *hookRegistry) add(h CommitHook) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, h)
}

// fire must run after the store released its locks
func (r *hookRegistry) fire(ctx context.Context, events []Event) {
	r.mu.RLock()
	hooks := append([]CommitHook(nil), r.hooks...)
	r.mu.RUnlock()

	for _, h := range hooks {
		h(ctx, append([]Event(nil), events...))
	}
}

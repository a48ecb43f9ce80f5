package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vehicle-auction/internal/biddingerrors"
	model "vehicle-auction/internal/models"
)

// MemoryRepo is a concurrency-safe in-memory implementation of Store.
// Transactions hold the write lock for their whole duration, so they are serializable.
type MemoryRepo struct {
	mu            sync.RWMutex
	auctions      map[uuid.UUID]model.Auction
	bids          map[uuid.UUID][]model.Bid // key: auctionID -> value: bids in insertion order
	bidAuction    map[uuid.UUID]uuid.UUID   // key: bidID -> value: auctionID
	users         map[uuid.UUID]model.User
	notifications map[uuid.UUID]model.Notification
	devices       map[string]model.Device // key: push token
	auditLogs     []model.AuditLog

	hooks hookRegistry
	now   func() time.Time
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:      make(map[uuid.UUID]model.Auction),
		bids:          make(map[uuid.UUID][]model.Bid),
		bidAuction:    make(map[uuid.UUID]uuid.UUID),
		users:         make(map[uuid.UUID]model.User),
		notifications: make(map[uuid.UUID]model.Notification),
		devices:       make(map[string]model.Device),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// OnCommit registers a hook fired after every committed transaction
func (r *MemoryRepo) OnCommit(hook CommitHook) {
	r.hooks.add(hook)
}

// Transact runs fn under the write lock and undoes its writes if it fails
func (r *MemoryRepo) Transact(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx := &memoryTx{repo: r, outbox: &Outbox{}}

	r.mu.Lock()
	committed := false
	func() {
		defer func() {
			if !committed {
				tx.rollback()
			}
			r.mu.Unlock()
		}()
		if err = ctx.Err(); err != nil {
			return
		}
		if err = fn(tx); err != nil {
			return
		}
		committed = true
	}()

	if err != nil {
		return err
	}
	r.hooks.fire(ctx, tx.outbox.Drain())
	return nil
}

// AddAuction adds an auction to the repository. This method is intended for tests only.
func (r *MemoryRepo) AddAuction(a model.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auctions[a.ID] = cloneAuction(a)
}

// AddUser adds a user to the repository. This method is intended for tests only.
func (r *MemoryRepo) AddUser(u model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

// --- locked readers ---

func (r *MemoryRepo) GetAuction(_ context.Context, id uuid.UUID) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getAuction(id)
}

func (r *MemoryRepo) ListAuctions(_ context.Context, filter model.AuctionFilter) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listAuctions(filter), nil
}

func (r *MemoryRepo) GetBid(_ context.Context, id uuid.UUID) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getBid(id)
}

func (r *MemoryRepo) GetBidsByAuction(_ context.Context, auctionID uuid.UUID) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bidsByAuction(auctionID), nil
}

func (r *MemoryRepo) GetWinningBid(_ context.Context, auctionID uuid.UUID) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.winningBid(auctionID)
}

func (r *MemoryRepo) CountBidsByBuyer(_ context.Context, auctionID, buyerID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countByBuyer(auctionID, buyerID), nil
}

func (r *MemoryRepo) GetUser(_ context.Context, id uuid.UUID) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getUser(id)
}

func (r *MemoryRepo) FindUserByLogin(_ context.Context, identifier string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findUserByLogin(identifier)
}

func (r *MemoryRepo) ListUsers(_ context.Context) ([]model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listUsers(func(model.User) bool { return true }), nil
}

func (r *MemoryRepo) ListActiveBuyers(_ context.Context) ([]model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listUsers(isActiveBuyer), nil
}

func (r *MemoryRepo) GetNotification(_ context.Context, id uuid.UUID) (model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getNotification(id)
}

func (r *MemoryRepo) ListDevicesByUser(_ context.Context, userID uuid.UUID) ([]model.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devicesByUser(userID), nil
}

func (r *MemoryRepo) ListAuditLogs(_ context.Context) ([]model.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.AuditLog(nil), r.auditLogs...), nil
}

// --- unlocked state access, shared by readers and transactions ---

func (r *MemoryRepo) getAuction(id uuid.UUID) (model.Auction, error) {
	a, ok := r.auctions[id]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", id, biddingerrors.ErrNotFound)
	}
	return cloneAuction(a), nil
}

func (r *MemoryRepo) listAuctions(filter model.AuctionFilter) []model.Auction {
	out := make([]model.Auction, 0, len(r.auctions))
	for _, a := range r.auctions {
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		if filter.SellerID != nil && a.SellerID != *filter.SellerID {
			continue
		}
		if filter.CreatedAfter != nil && !a.CreatedAt.After(*filter.CreatedAfter) {
			continue
		}
		if filter.BidderID != nil && r.countByBuyer(a.ID, *filter.BidderID) == 0 {
			continue
		}
		out = append(out, cloneAuction(a))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if filter.SortFresh {
			si, sj := out[i].StartAt, out[j].StartAt
			switch {
			case si == nil && sj == nil:
			case si == nil:
				return false
			case sj == nil:
				return true
			case !si.Equal(*sj):
				return si.After(*sj)
			}
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func (r *MemoryRepo) getBid(id uuid.UUID) (model.Bid, error) {
	auctionID, ok := r.bidAuction[id]
	if !ok {
		return model.Bid{}, fmt.Errorf("get bid %s: %w", id, biddingerrors.ErrNotFound)
	}
	for _, b := range r.bids[auctionID] {
		if b.ID == id {
			return r.withUsername(b), nil
		}
	}
	return model.Bid{}, fmt.Errorf("get bid %s: %w", id, biddingerrors.ErrNotFound)
}

func (r *MemoryRepo) bidsByAuction(auctionID uuid.UUID) []model.Bid {
	bids := r.bids[auctionID]
	out := make([]model.Bid, 0, len(bids))
	for _, b := range bids {
		out = append(out, r.withUsername(b))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *MemoryRepo) winningBid(auctionID uuid.UUID) (model.Bid, error) {
	bids := r.bids[auctionID]
	if len(bids) == 0 {
		return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}

	winning := bids[0]
	for _, b := range bids[1:] {
		c := b.Amount.Cmp(winning.Amount)
		if c > 0 || (c == 0 && b.CreatedAt.Before(winning.CreatedAt)) {
			winning = b
		}
	}
	return r.withUsername(winning), nil
}

func (r *MemoryRepo) countByBuyer(auctionID, buyerID uuid.UUID) int {
	n := 0
	for _, b := range r.bids[auctionID] {
		if b.BuyerID == buyerID {
			n++
		}
	}
	return n
}

func (r *MemoryRepo) withUsername(b model.Bid) model.Bid {
	if u, ok := r.users[b.BuyerID]; ok {
		b.BuyerUsername = u.Username
	}
	return b
}

func (r *MemoryRepo) getUser(id uuid.UUID) (model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("get user %s: %w", id, biddingerrors.ErrNotFound)
	}
	return u, nil
}

func (r *MemoryRepo) findUserByLogin(identifier string) (model.User, error) {
	lowered := strings.ToLower(identifier)
	for _, u := range r.users {
		if u.Username == identifier || strings.ToLower(u.Email) == lowered {
			return u, nil
		}
	}
	return model.User{}, fmt.Errorf("find user %q: %w", identifier, biddingerrors.ErrNotFound)
}

func (r *MemoryRepo) listUsers(keep func(model.User) bool) []model.User {
	out := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		if keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *MemoryRepo) getNotification(id uuid.UUID) (model.Notification, error) {
	n, ok := r.notifications[id]
	if !ok {
		return model.Notification{}, fmt.Errorf("get notification %s: %w", id, biddingerrors.ErrNotFound)
	}
	return n, nil
}

func (r *MemoryRepo) devicesByUser(userID uuid.UUID) []model.Device {
	var out []model.Device
	for _, d := range r.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpoPushToken < out[j].ExpoPushToken })
	return out
}

func isActiveBuyer(u model.User) bool {
	return u.Role == model.RoleBuyer && u.IsActive()
}

func cloneAuction(a model.Auction) model.Auction {
	a.ImageURLs = append([]string(nil), a.ImageURLs...)
	a.Bids = nil
	return a
}

// memoryTx applies writes directly and keeps an undo log for rollback.
// The repo's write lock is held for its lifetime.
type memoryTx struct {
	repo   *MemoryRepo
	outbox *Outbox
	undo   []func()
}

func (t *memoryTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.outbox.Drain()
}

func (t *memoryTx) stamp(id *uuid.UUID, createdAt *time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	if createdAt.IsZero() {
		*createdAt = t.repo.now()
	}
}

func (t *memoryTx) GetAuction(_ context.Context, id uuid.UUID) (model.Auction, error) {
	return t.repo.getAuction(id)
}

func (t *memoryTx) GetAuctionForUpdate(_ context.Context, id uuid.UUID) (model.Auction, error) {
	return t.repo.getAuction(id)
}

func (t *memoryTx) ListAuctions(_ context.Context, filter model.AuctionFilter) ([]model.Auction, error) {
	return t.repo.listAuctions(filter), nil
}

func (t *memoryTx) GetBid(_ context.Context, id uuid.UUID) (model.Bid, error) {
	return t.repo.getBid(id)
}

func (t *memoryTx) GetBidsByAuction(_ context.Context, auctionID uuid.UUID) ([]model.Bid, error) {
	return t.repo.bidsByAuction(auctionID), nil
}

func (t *memoryTx) GetWinningBid(_ context.Context, auctionID uuid.UUID) (model.Bid, error) {
	return t.repo.winningBid(auctionID)
}

func (t *memoryTx) CountBidsByBuyer(_ context.Context, auctionID, buyerID uuid.UUID) (int, error) {
	return t.repo.countByBuyer(auctionID, buyerID), nil
}

func (t *memoryTx) GetUser(_ context.Context, id uuid.UUID) (model.User, error) {
	return t.repo.getUser(id)
}

func (t *memoryTx) FindUserByLogin(_ context.Context, identifier string) (model.User, error) {
	return t.repo.findUserByLogin(identifier)
}

func (t *memoryTx) ListUsers(_ context.Context) ([]model.User, error) {
	return t.repo.listUsers(func(model.User) bool { return true }), nil
}

func (t *memoryTx) ListActiveBuyers(_ context.Context) ([]model.User, error) {
	return t.repo.listUsers(isActiveBuyer), nil
}

func (t *memoryTx) GetNotification(_ context.Context, id uuid.UUID) (model.Notification, error) {
	return t.repo.getNotification(id)
}

func (t *memoryTx) ListDevicesByUser(_ context.Context, userID uuid.UUID) ([]model.Device, error) {
	return t.repo.devicesByUser(userID), nil
}

func (t *memoryTx) ListAuditLogs(_ context.Context) ([]model.AuditLog, error) {
	return append([]model.AuditLog(nil), t.repo.auditLogs...), nil
}

func (t *memoryTx) CreateAuction(_ context.Context, a *model.Auction) error {
	t.stamp(&a.ID, &a.CreatedAt)
	if _, exists := t.repo.auctions[a.ID]; exists {
		return fmt.Errorf("create auction %s: %w", a.ID, biddingerrors.ErrDuplicate)
	}
	t.repo.auctions[a.ID] = cloneAuction(*a)
	id := a.ID
	t.undo = append(t.undo, func() { delete(t.repo.auctions, id) })
	return nil
}

func (t *memoryTx) UpdateAuction(_ context.Context, a *model.Auction) error {
	prev, ok := t.repo.auctions[a.ID]
	if !ok {
		return fmt.Errorf("update auction %s: %w", a.ID, biddingerrors.ErrNotFound)
	}
	t.repo.auctions[a.ID] = cloneAuction(*a)
	t.undo = append(t.undo, func() { t.repo.auctions[prev.ID] = prev })
	return nil
}

func (t *memoryTx) DeleteAuction(_ context.Context, id uuid.UUID) error {
	prev, ok := t.repo.auctions[id]
	if !ok {
		return fmt.Errorf("delete auction %s: %w", id, biddingerrors.ErrNotFound)
	}
	prevBids := t.repo.bids[id]

	delete(t.repo.auctions, id)
	delete(t.repo.bids, id)
	for _, b := range prevBids {
		delete(t.repo.bidAuction, b.ID)
	}

	t.undo = append(t.undo, func() {
		t.repo.auctions[id] = prev
		if prevBids != nil {
			t.repo.bids[id] = prevBids
		}
		for _, b := range prevBids {
			t.repo.bidAuction[b.ID] = id
		}
	})
	return nil
}

func (t *memoryTx) CreateBid(_ context.Context, bid *model.Bid) error {
	if _, ok := t.repo.auctions[bid.AuctionID]; !ok {
		return fmt.Errorf("record bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrNotFound)
	}
	for _, b := range t.repo.bids[bid.AuctionID] {
		if b.BuyerID == bid.BuyerID && b.IdxPerBuyer == bid.IdxPerBuyer {
			return fmt.Errorf("record bid %d for buyer %s: %w", bid.IdxPerBuyer, bid.BuyerID, biddingerrors.ErrDuplicate)
		}
	}
	t.stamp(&bid.ID, &bid.CreatedAt)

	stored := *bid
	stored.BuyerUsername = ""
	prev := t.repo.bids[bid.AuctionID]
	t.repo.bids[bid.AuctionID] = append(prev[:len(prev):len(prev)], stored)
	t.repo.bidAuction[bid.ID] = bid.AuctionID

	auctionID, bidID := bid.AuctionID, bid.ID
	t.undo = append(t.undo, func() {
		if prev == nil {
			delete(t.repo.bids, auctionID)
		} else {
			t.repo.bids[auctionID] = prev
		}
		delete(t.repo.bidAuction, bidID)
	})
	return nil
}

func (t *memoryTx) CreateUser(_ context.Context, u *model.User) error {
	email := strings.ToLower(u.Email)
	for _, existing := range t.repo.users {
		if existing.Username == u.Username || strings.ToLower(existing.Email) == email {
			return fmt.Errorf("create user %q: %w", u.Username, biddingerrors.ErrDuplicate)
		}
	}
	t.stamp(&u.ID, &u.CreatedAt)
	t.repo.users[u.ID] = *u
	id := u.ID
	t.undo = append(t.undo, func() { delete(t.repo.users, id) })
	return nil
}

func (t *memoryTx) UpdateUser(_ context.Context, u *model.User) error {
	prev, ok := t.repo.users[u.ID]
	if !ok {
		return fmt.Errorf("update user %s: %w", u.ID, biddingerrors.ErrNotFound)
	}
	t.repo.users[u.ID] = *u
	t.undo = append(t.undo, func() { t.repo.users[prev.ID] = prev })
	return nil
}

func (t *memoryTx) CreateNotification(_ context.Context, n *model.Notification) error {
	t.stamp(&n.ID, &n.CreatedAt)
	t.repo.notifications[n.ID] = *n
	id := n.ID
	t.undo = append(t.undo, func() { delete(t.repo.notifications, id) })
	t.outbox.Stage(notificationEvent(*n))
	return nil
}

func (t *memoryTx) DeleteNotification(_ context.Context, id uuid.UUID) error {
	prev, ok := t.repo.notifications[id]
	if !ok {
		return fmt.Errorf("delete notification %s: %w", id, biddingerrors.ErrNotFound)
	}
	delete(t.repo.notifications, id)
	t.undo = append(t.undo, func() { t.repo.notifications[id] = prev })
	return nil
}

func (t *memoryTx) SaveDevice(_ context.Context, d *model.Device) error {
	if prev, ok := t.repo.devices[d.ExpoPushToken]; ok {
		updated := prev
		updated.UserID = d.UserID
		t.repo.devices[d.ExpoPushToken] = updated
		*d = updated
		t.undo = append(t.undo, func() { t.repo.devices[prev.ExpoPushToken] = prev })
		return nil
	}
	t.stamp(&d.ID, &d.CreatedAt)
	t.repo.devices[d.ExpoPushToken] = *d
	token := d.ExpoPushToken
	t.undo = append(t.undo, func() { delete(t.repo.devices, token) })
	return nil
}

func (t *memoryTx) AppendAuditLog(_ context.Context, entry *model.AuditLog) error {
	t.stamp(&entry.ID, &entry.CreatedAt)
	n := len(t.repo.auditLogs)
	t.repo.auditLogs = append(t.repo.auditLogs, *entry)
	t.undo = append(t.undo, func() { t.repo.auditLogs = t.repo.auditLogs[:n] })
	return nil
}

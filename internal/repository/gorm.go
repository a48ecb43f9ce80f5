package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"vehicle-auction/internal/biddingerrors"
	model "vehicle-auction/internal/models"
)

const mysqlDuplicateEntry = 1062

// Open connects to MySQL and configures the connection pool
func Open(dsn string) (*gorm.DB, error) {
	dsn, err := normalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC() },
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("gorm: connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// normalizeDSN makes DATETIME columns scan into time.Time and reads naive timestamps as UTC
func normalizeDSN(dsn string) (string, error) {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("gorm: parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// Migrate creates or updates the tables backing every model
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Auction{},
		&model.Bid{},
		&model.Notification{},
		&model.AuditLog{},
		&model.Device{},
	)
}

// GormRepo is the MySQL-backed Store
type GormRepo struct {
	gormQueries
	hooks hookRegistry
}

// NewGormRepo wraps an open connection
func NewGormRepo(db *gorm.DB) *GormRepo {
	if db == nil {
		panic("database connection cannot be nil for GormRepo")
	}
	return &GormRepo{gormQueries: gormQueries{db: db}}
}

// OnCommit registers a hook fired after every committed transaction
func (r *GormRepo) OnCommit(hook CommitHook) {
	r.hooks.add(hook)
}

// Transact runs fn inside a database transaction
func (r *GormRepo) Transact(ctx context.Context, fn func(tx Tx) error) error {
	outbox := &Outbox{}
	err := r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{gormQueries: gormQueries{db: db}, outbox: outbox})
	})
	if err != nil {
		return err
	}
	r.hooks.fire(ctx, outbox.Drain())
	return nil
}

// gormQueries implements Reader against either the pool or an open transaction
type gormQueries struct {
	db *gorm.DB
}

func (q gormQueries) GetAuction(ctx context.Context, id uuid.UUID) (model.Auction, error) {
	var a model.Auction
	if err := q.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return model.Auction{}, mapError(fmt.Sprintf("get auction %s", id), err)
	}
	return a, nil
}

func (q gormQueries) ListAuctions(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error) {
	query := q.db.WithContext(ctx).Model(&model.Auction{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.SellerID != nil {
		query = query.Where("seller_id = ?", *filter.SellerID)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", filter.CreatedAfter.UTC())
	}
	if filter.BidderID != nil {
		query = query.Where("EXISTS (SELECT 1 FROM bids WHERE bids.auction_id = auctions.id AND bids.buyer_id = ?)", *filter.BidderID)
	}
	if filter.SortFresh {
		query = query.Order("start_at DESC")
	}
	query = query.Order("created_at DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var auctions []model.Auction
	if err := query.Find(&auctions).Error; err != nil {
		return nil, mapError("list auctions", err)
	}
	return auctions, nil
}

func (q gormQueries) GetBid(ctx context.Context, id uuid.UUID) (model.Bid, error) {
	var b model.Bid
	if err := q.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return model.Bid{}, mapError(fmt.Sprintf("get bid %s", id), err)
	}
	bids, err := q.withUsernames(ctx, []model.Bid{b})
	if err != nil {
		return model.Bid{}, err
	}
	return bids[0], nil
}

func (q gormQueries) GetBidsByAuction(ctx context.Context, auctionID uuid.UUID) ([]model.Bid, error) {
	var bids []model.Bid
	err := q.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("amount DESC").Order("created_at ASC").
		Find(&bids).Error
	if err != nil {
		return nil, mapError(fmt.Sprintf("get bids for auction %s", auctionID), err)
	}
	return q.withUsernames(ctx, bids)
}

func (q gormQueries) GetWinningBid(ctx context.Context, auctionID uuid.UUID) (model.Bid, error) {
	var b model.Bid
	err := q.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("amount DESC").Order("created_at ASC").
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	if err != nil {
		return model.Bid{}, mapError(fmt.Sprintf("get winning bid for auction %s", auctionID), err)
	}
	bids, err := q.withUsernames(ctx, []model.Bid{b})
	if err != nil {
		return model.Bid{}, err
	}
	return bids[0], nil
}

func (q gormQueries) CountBidsByBuyer(ctx context.Context, auctionID, buyerID uuid.UUID) (int, error) {
	var n int64
	err := q.db.WithContext(ctx).Model(&model.Bid{}).
		Where("auction_id = ? AND buyer_id = ?", auctionID, buyerID).
		Count(&n).Error
	if err != nil {
		return 0, mapError("count bids", err)
	}
	return int(n), nil
}

// withUsernames fills BuyerUsername with one lookup for all buyers
func (q gormQueries) withUsernames(ctx context.Context, bids []model.Bid) ([]model.Bid, error) {
	if len(bids) == 0 {
		return bids, nil
	}
	ids := make([]uuid.UUID, 0, len(bids))
	seen := make(map[uuid.UUID]bool, len(bids))
	for _, b := range bids {
		if !seen[b.BuyerID] {
			seen[b.BuyerID] = true
			ids = append(ids, b.BuyerID)
		}
	}

	var users []model.User
	if err := q.db.WithContext(ctx).Select("id", "username").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, mapError("load bid buyers", err)
	}
	names := make(map[uuid.UUID]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Username
	}
	for i := range bids {
		bids[i].BuyerUsername = names[bids[i].BuyerID]
	}
	return bids, nil
}

func (q gormQueries) GetUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	var u model.User
	if err := q.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return model.User{}, mapError(fmt.Sprintf("get user %s", id), err)
	}
	return u, nil
}

func (q gormQueries) FindUserByLogin(ctx context.Context, identifier string) (model.User, error) {
	var u model.User
	err := q.db.WithContext(ctx).
		Where("username = ? OR LOWER(email) = ?", identifier, strings.ToLower(identifier)).
		First(&u).Error
	if err != nil {
		return model.User{}, mapError(fmt.Sprintf("find user %q", identifier), err)
	}
	return u, nil
}

func (q gormQueries) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := q.db.WithContext(ctx).Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, mapError("list users", err)
	}
	return users, nil
}

func (q gormQueries) ListActiveBuyers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := q.db.WithContext(ctx).
		Where("role = ? AND status = ?", model.RoleBuyer, model.StatusActive).
		Order("created_at DESC").
		Find(&users).Error
	if err != nil {
		return nil, mapError("list active buyers", err)
	}
	return users, nil
}

func (q gormQueries) GetNotification(ctx context.Context, id uuid.UUID) (model.Notification, error) {
	var n model.Notification
	if err := q.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return model.Notification{}, mapError(fmt.Sprintf("get notification %s", id), err)
	}
	return n, nil
}

func (q gormQueries) ListDevicesByUser(ctx context.Context, userID uuid.UUID) ([]model.Device, error) {
	var devices []model.Device
	err := q.db.WithContext(ctx).Where("user_id = ?", userID).Order("expo_push_token").Find(&devices).Error
	if err != nil {
		return nil, mapError("list devices", err)
	}
	return devices, nil
}

func (q gormQueries) ListAuditLogs(ctx context.Context) ([]model.AuditLog, error) {
	var logs []model.AuditLog
	if err := q.db.WithContext(ctx).Order("created_at ASC").Find(&logs).Error; err != nil {
		return nil, mapError("list audit logs", err)
	}
	return logs, nil
}

// gormTx is a Tx bound to an open database transaction
type gormTx struct {
	gormQueries
	outbox *Outbox
}

func (t *gormTx) GetAuctionForUpdate(ctx context.Context, id uuid.UUID) (model.Auction, error) {
	var a model.Auction
	err := t.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, "id = ?", id).Error
	if err != nil {
		return model.Auction{}, mapError(fmt.Sprintf("lock auction %s", id), err)
	}
	return a, nil
}

func (t *gormTx) CreateAuction(ctx context.Context, a *model.Auction) error {
	ensureID(&a.ID)
	if err := t.db.WithContext(ctx).Omit(clause.Associations).Create(a).Error; err != nil {
		return mapError(fmt.Sprintf("create auction %s", a.ID), err)
	}
	return nil
}

func (t *gormTx) UpdateAuction(ctx context.Context, a *model.Auction) error {
	err := t.db.WithContext(ctx).Model(a).
		Select("*").Omit("id", "created_at", clause.Associations).
		Updates(a).Error
	if err != nil {
		return mapError(fmt.Sprintf("update auction %s", a.ID), err)
	}
	return nil
}

func (t *gormTx) DeleteAuction(ctx context.Context, id uuid.UUID) error {
	db := t.db.WithContext(ctx)
	if err := db.Where("auction_id = ?", id).Delete(&model.Bid{}).Error; err != nil {
		return mapError(fmt.Sprintf("delete bids of auction %s", id), err)
	}
	res := db.Where("id = ?", id).Delete(&model.Auction{})
	if res.Error != nil {
		return mapError(fmt.Sprintf("delete auction %s", id), res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete auction %s: %w", id, biddingerrors.ErrNotFound)
	}
	return nil
}

func (t *gormTx) CreateBid(ctx context.Context, bid *model.Bid) error {
	ensureID(&bid.ID)
	if err := t.db.WithContext(ctx).Create(bid).Error; err != nil {
		return mapError(fmt.Sprintf("record bid %d for buyer %s", bid.IdxPerBuyer, bid.BuyerID), err)
	}
	return nil
}

func (t *gormTx) CreateUser(ctx context.Context, u *model.User) error {
	ensureID(&u.ID)
	if err := t.db.WithContext(ctx).Create(u).Error; err != nil {
		return mapError(fmt.Sprintf("create user %q", u.Username), err)
	}
	return nil
}

func (t *gormTx) UpdateUser(ctx context.Context, u *model.User) error {
	err := t.db.WithContext(ctx).Model(u).
		Select("email", "username", "password_hash", "role", "status").
		Updates(u).Error
	if err != nil {
		return mapError(fmt.Sprintf("update user %s", u.ID), err)
	}
	return nil
}

func (t *gormTx) CreateNotification(ctx context.Context, n *model.Notification) error {
	ensureID(&n.ID)
	if err := t.db.WithContext(ctx).Create(n).Error; err != nil {
		return mapError(fmt.Sprintf("create notification for user %s", n.UserID), err)
	}
	t.outbox.Stage(notificationEvent(*n))
	return nil
}

func (t *gormTx) DeleteNotification(ctx context.Context, id uuid.UUID) error {
	res := t.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Notification{})
	if res.Error != nil {
		return mapError(fmt.Sprintf("delete notification %s", id), res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete notification %s: %w", id, biddingerrors.ErrNotFound)
	}
	return nil
}

func (t *gormTx) SaveDevice(ctx context.Context, d *model.Device) error {
	db := t.db.WithContext(ctx)

	var existing model.Device
	err := db.Where("expo_push_token = ?", d.ExpoPushToken).First(&existing).Error
	switch {
	case err == nil:
		if err := db.Model(&existing).Update("user_id", d.UserID).Error; err != nil {
			return mapError("reassign device", err)
		}
		existing.UserID = d.UserID
		*d = existing
		return nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return mapError("find device", err)
	}

	ensureID(&d.ID)
	if err := db.Create(d).Error; err != nil {
		return mapError("register device", err)
	}
	return nil
}

func (t *gormTx) AppendAuditLog(ctx context.Context, entry *model.AuditLog) error {
	ensureID(&entry.ID)
	if err := t.db.WithContext(ctx).Create(entry).Error; err != nil {
		return mapError(fmt.Sprintf("append audit log %q", entry.Action), err)
	}
	return nil
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// mapError translates driver errors into repository sentinels
func mapError(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, biddingerrors.ErrNotFound)
	}
	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%s: %w", op, biddingerrors.ErrDuplicate)
	}
	return fmt.Errorf("gorm: %s: %w", op, err)
}

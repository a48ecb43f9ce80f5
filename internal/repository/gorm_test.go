package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vehicle-auction/internal/biddingerrors"
	model "vehicle-auction/internal/models"
)

func newMockRepo(t *testing.T) (*GormRepo, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: db, SkipInitializeWithVersion: true}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)
	return NewGormRepo(gdb), mock
}

func TestGormRepo_GetAuctionNotFound(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT \\* FROM `auctions` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetAuction(context.Background(), uuid.New())
	require.ErrorIs(t, err, biddingerrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRepo_GetWinningBid(t *testing.T) {
	t.Parallel()

	t.Run("fills_buyer_username", func(t *testing.T) {
		t.Parallel()

		repo, mock := newMockRepo(t)
		auctionID, buyerID, bidID := uuid.New(), uuid.New(), uuid.New()
		createdAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

		mock.ExpectQuery("SELECT \\* FROM `bids` WHERE auction_id = \\? ORDER BY amount DESC").
			WillReturnRows(sqlmock.NewRows([]string{"id", "auction_id", "buyer_id", "amount", "idx_per_buyer", "created_at"}).
				AddRow(bidID.String(), auctionID.String(), buyerID.String(), "51000.00", 1, createdAt))
		mock.ExpectQuery("FROM `users` WHERE id IN").
			WillReturnRows(sqlmock.NewRows([]string{"id", "username"}).AddRow(buyerID.String(), "alice"))

		bid, err := repo.GetWinningBid(context.Background(), auctionID)
		require.NoError(t, err)
		require.Equal(t, bidID, bid.ID)
		require.Equal(t, "51000", bid.Amount.String())
		require.Equal(t, "alice", bid.BuyerUsername)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no_bids", func(t *testing.T) {
		t.Parallel()

		repo, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT \\* FROM `bids`").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.GetWinningBid(context.Background(), uuid.New())
		require.ErrorIs(t, err, biddingerrors.ErrNoBids)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormRepo_TransactCommitFiresHooks(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	var fired []Event
	calls := 0
	repo.OnCommit(func(_ context.Context, events []Event) {
		calls++
		fired = events
	})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `notifications`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	n := model.Notification{UserID: uuid.New(), Type: model.NotificationResult, Payload: map[string]any{"auction_id": "a1"}}
	err := repo.Transact(context.Background(), func(tx Tx) error {
		return tx.CreateNotification(context.Background(), &n)
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Len(t, fired, 1)
	require.Equal(t, n.ID, fired[0].NotificationID)
	require.Equal(t, model.NotificationResult, fired[0].Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRepo_TransactRollbackDiscardsEvents(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	calls := 0
	repo.OnCommit(func(context.Context, []Event) { calls++ })

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `notifications`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := repo.Transact(context.Background(), func(tx Tx) error {
		if err := tx.CreateNotification(context.Background(), &model.Notification{UserID: uuid.New(), Type: model.NotificationNewAuction}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Zero(t, calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRepo_CreateUserDuplicate(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `users`").
		WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry 'alice' for key 'username'"})
	mock.ExpectRollback()

	err := repo.Transact(context.Background(), func(tx Tx) error {
		return tx.CreateUser(context.Background(), &model.User{
			Email: "alice@example.com", Username: "alice", PasswordHash: "x",
			Role: model.RoleBuyer, Status: model.StatusActive,
		})
	})
	require.ErrorIs(t, err, biddingerrors.ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRepo_DeleteAuction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{name: "deleted", affected: 1, wantErr: nil},
		{name: "missing", affected: 0, wantErr: biddingerrors.ErrNotFound},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo, mock := newMockRepo(t)
			mock.ExpectBegin()
			mock.ExpectExec("DELETE FROM `bids` WHERE auction_id = \\?").WillReturnResult(sqlmock.NewResult(0, 3))
			mock.ExpectExec("DELETE FROM `auctions` WHERE id = \\?").WillReturnResult(sqlmock.NewResult(0, tc.affected))
			if tc.wantErr == nil {
				mock.ExpectCommit()
			} else {
				mock.ExpectRollback()
			}

			err := repo.Transact(context.Background(), func(tx Tx) error {
				return tx.DeleteAuction(context.Background(), uuid.New())
			})
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormRepo_CountBidsByBuyer(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `bids` WHERE auction_id = \\? AND buyer_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := repo.CountBidsByBuyer(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalizeDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		dsn  string
	}{
		{name: "bare", dsn: "auction:secret@tcp(db:3306)/auction"},
		{name: "parse_time_off", dsn: "auction:secret@tcp(db:3306)/auction?parseTime=false"},
		{name: "local_zone", dsn: "auction:secret@tcp(db:3306)/auction?parseTime=true&loc=Local&charset=utf8mb4"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := normalizeDSN(tc.dsn)
			require.NoError(t, err)

			cfg, err := mysqldriver.ParseDSN(got)
			require.NoError(t, err)
			require.True(t, cfg.ParseTime)
			require.Equal(t, time.UTC, cfg.Loc)
			require.Equal(t, "auction", cfg.User)
			require.Equal(t, "secret", cfg.Passwd)
			require.Equal(t, "db:3306", cfg.Addr)
			require.Equal(t, "auction", cfg.DBName)
		})
	}

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		_, err := normalizeDSN("auction:secret@tcp(db:3306")
		require.Error(t, err)
	})
}

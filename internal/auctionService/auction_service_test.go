package auction

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"vehicle-auction/internal/biddingerrors"
	"vehicle-auction/internal/lifecycle"
	model "vehicle-auction/internal/models"
	"vehicle-auction/internal/repository"
)

var fixedNow = time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func validInput() Input {
	return Input{
		Title:       strPtr("  Renault Clio 2019 "),
		Description: strPtr("One owner, full service history"),
		MinPrice:    strPtr("50000"),
		Images:      json.RawMessage(`["https://img/1.jpg", {"url": "https://img/2.jpg"}]`),
		Certificate: json.RawMessage(`"https://img/cert.jpg"`),
	}
}

func newUser(role model.UserRole, status model.UserStatus) model.User {
	id := uuid.New()
	return model.User{
		ID:        id,
		Username:  string(role) + "-" + id.String()[:8],
		Email:     id.String() + "@example.com",
		Role:      role,
		Status:    status,
		CreatedAt: fixedNow.Add(-time.Hour),
	}
}

func newService(t *testing.T, policy Policy) (*AuctionService, *repository.MemoryRepo) {
	t.Helper()
	repo := repository.NewMemoryRepo()
	return NewAuctionService(repo, policy, WithClock(func() time.Time { return fixedNow })), repo
}

func placeBid(t *testing.T, repo *repository.MemoryRepo, auctionID, buyerID uuid.UUID, amount string) model.Bid {
	t.Helper()
	bid := model.Bid{AuctionID: auctionID, BuyerID: buyerID, Amount: decimal.RequireFromString(amount), IdxPerBuyer: 1, CreatedAt: fixedNow}
	require.NoError(t, repo.Transact(context.Background(), func(tx repository.Tx) error {
		return tx.CreateBid(context.Background(), &bid)
	}))
	return bid
}

func TestAuctionService_Create(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, repo := newService(t, Policy{})
	seller := newUser(model.RoleSeller, model.StatusActive)

	activeBuyers := []model.User{newUser(model.RoleBuyer, model.StatusActive), newUser(model.RoleBuyer, model.StatusActive)}
	for _, u := range activeBuyers {
		repo.AddUser(u)
	}
	repo.AddUser(newUser(model.RoleBuyer, model.StatusSuspended))
	repo.AddUser(newUser(model.RoleSeller, model.StatusActive))

	var events []repository.Event
	repo.OnCommit(func(_ context.Context, e []repository.Event) { events = append(events, e...) })

	view, err := service.Create(ctx, seller, validInput())
	require.NoError(t, err)

	a := view.Auction
	require.Equal(t, "Renault Clio 2019", a.Title)
	require.Equal(t, "50000.00", a.MinPrice.StringFixed(2))
	require.Equal(t, DefaultCurrency, a.Currency)
	require.Equal(t, []string{"https://img/1.jpg", "https://img/2.jpg"}, a.ImageURLs)
	require.Equal(t, "https://img/cert.jpg", a.CertificateImageURL)
	require.Equal(t, model.AuctionActive, a.Status)
	require.Equal(t, fixedNow, *a.StartAt)
	require.Equal(t, fixedNow.Add(lifecycle.BiddingWindow), *a.EndAt)
	require.Nil(t, view.BestBid)

	require.Len(t, events, len(activeBuyers))
	recipients := map[uuid.UUID]bool{}
	for _, e := range events {
		require.Equal(t, model.NotificationNewAuction, e.Type)
		recipients[e.UserID] = true

		n, err := repo.GetNotification(ctx, e.NotificationID)
		require.NoError(t, err)
		require.Equal(t, a.ID.String(), n.Payload["auction_id"])
	}
	for _, u := range activeBuyers {
		require.True(t, recipients[u.ID])
	}
}

func TestAuctionService_CreateValidation(t *testing.T) {
	t.Parallel()

	seller := newUser(model.RoleSeller, model.StatusActive)

	tests := []struct {
		name    string
		user    model.User
		mutate  func(in *Input)
		wantErr error
		wantMsg string
	}{
		{name: "buyer_forbidden", user: newUser(model.RoleBuyer, model.StatusActive), mutate: func(*Input) {}, wantErr: biddingerrors.ErrPermission},
		{name: "missing_title", user: seller, mutate: func(in *Input) { in.Title = strPtr("   ") }, wantMsg: "Missing title"},
		{name: "missing_description", user: seller, mutate: func(in *Input) { in.Description = nil }, wantMsg: "Missing description"},
		{name: "missing_price", user: seller, mutate: func(in *Input) { in.MinPrice = nil }, wantMsg: "Missing minimum price"},
		{name: "price_not_numeric", user: seller, mutate: func(in *Input) { in.MinPrice = strPtr("cheap") }, wantMsg: "Minimum price must be numeric"},
		{name: "price_not_positive", user: seller, mutate: func(in *Input) { in.MinPrice = strPtr("0") }, wantMsg: "Minimum price must be positive"},
		{name: "price_huge_exponent", user: seller, mutate: func(in *Input) { in.MinPrice = strPtr("1e10000000") }, wantMsg: "Minimum price is too large"},
		{name: "price_tiny_exponent", user: seller, mutate: func(in *Input) { in.MinPrice = strPtr("1e-100000000") }, wantMsg: "Minimum price must be positive"},
		{name: "bad_currency", user: seller, mutate: func(in *Input) { in.Currency = strPtr("EURO") }, wantMsg: "Currency must be a three-letter code"},
		{name: "currency_digits", user: seller, mutate: func(in *Input) { in.Currency = strPtr("E1R") }, wantMsg: "Currency must be a three-letter code"},
		{name: "missing_certificate", user: seller, mutate: func(in *Input) { in.Certificate = nil }, wantMsg: "Missing certificate image"},
		{name: "two_certificates", user: seller, mutate: func(in *Input) { in.Certificate = json.RawMessage(`["a","b"]`) }, wantMsg: "Only one certificate image can be provided"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			service, repo := newService(t, Policy{})
			in := validInput()
			tc.mutate(&in)

			_, err := service.Create(context.Background(), tc.user, in)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.ErrorIs(t, err, biddingerrors.ErrValidation)
				msg, ok := biddingerrors.Message(err)
				require.True(t, ok)
				require.Equal(t, tc.wantMsg, msg)
			}

			all, err := repo.ListAuctions(context.Background(), model.AuctionFilter{})
			require.NoError(t, err)
			require.Empty(t, all)
		})
	}
}

func TestAuctionService_CurrencyIsNormalized(t *testing.T) {
	t.Parallel()

	service, _ := newService(t, Policy{})
	in := validInput()
	in.Currency = strPtr(" usd ")

	view, err := service.Create(context.Background(), newUser(model.RoleAdmin, model.StatusActive), in)
	require.NoError(t, err)
	require.Equal(t, "USD", view.Auction.Currency)
}

func TestAuctionService_GetViews(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, repo := newService(t, Policy{})
	view, err := service.Create(ctx, newUser(model.RoleSeller, model.StatusActive), validInput())
	require.NoError(t, err)

	viewer := newUser(model.RoleBuyer, model.StatusActive)
	other := newUser(model.RoleBuyer, model.StatusActive)
	repo.AddUser(viewer)
	repo.AddUser(other)
	mine := placeBid(t, repo, view.Auction.ID, viewer.ID, "50500")
	top := placeBid(t, repo, view.Auction.ID, other.ID, "51000")

	got, err := service.Get(ctx, view.Auction.ID, &viewer)
	require.NoError(t, err)
	require.Equal(t, top.ID, got.BestBid.ID)
	require.Equal(t, other.Username, got.BestBid.BuyerUsername)
	require.True(t, got.ViewerHasBid)
	require.Equal(t, mine.ID, got.ViewerBid.ID)

	anonymous, err := service.Get(ctx, view.Auction.ID, nil)
	require.NoError(t, err)
	require.False(t, anonymous.ViewerHasBid)
	require.Nil(t, anonymous.ViewerBid)

	_, err = service.Get(ctx, uuid.New(), nil)
	require.ErrorIs(t, err, biddingerrors.ErrNotFound)
}

func TestAuctionService_List(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, repo := newService(t, Policy{})
	seller := newUser(model.RoleSeller, model.StatusActive)
	buyer := newUser(model.RoleBuyer, model.StatusActive)

	first, err := service.Create(ctx, seller, validInput())
	require.NoError(t, err)
	second, err := service.Create(ctx, seller, validInput())
	require.NoError(t, err)
	_, err = service.Close(ctx, seller, second.Auction.ID)
	require.NoError(t, err)
	placeBid(t, repo, first.Auction.ID, buyer.ID, "60000")

	tests := []struct {
		name    string
		query   ListQuery
		viewer  *model.User
		wantIDs []uuid.UUID
		wantErr error
	}{
		{name: "default_active", query: ListQuery{}, wantIDs: []uuid.UUID{first.Auction.ID}},
		{name: "closed_only", query: ListQuery{Status: "closed"}, wantIDs: []uuid.UUID{second.Auction.ID}},
		{name: "all", query: ListQuery{Status: "all"}, wantIDs: []uuid.UUID{first.Auction.ID, second.Auction.ID}},
		{name: "invalid_status", query: ListQuery{Status: "sold"}, wantErr: biddingerrors.ErrValidation},
		{name: "invalid_scope", query: ListQuery{Scope: "mine"}, wantErr: biddingerrors.ErrValidation},
		{name: "participating_requires_viewer", query: ListQuery{Scope: "participating"}, wantErr: biddingerrors.ErrUnauthenticated},
		{name: "participating_requires_buyer", query: ListQuery{Scope: "participating"}, viewer: &seller, wantErr: biddingerrors.ErrPermission},
		{name: "participating", query: ListQuery{Scope: "participating", Status: "all"}, viewer: &buyer, wantIDs: []uuid.UUID{first.Auction.ID}},
		{name: "created_after_excludes_equal", query: ListQuery{Status: "all", CreatedAfter: fixedNow.Format(time.RFC3339)}, wantIDs: []uuid.UUID{}},
		{name: "created_after_naive", query: ListQuery{Status: "all", CreatedAfter: "2026-06-01T09:00:00"}, wantIDs: []uuid.UUID{first.Auction.ID, second.Auction.ID}},
		{name: "created_after_invalid", query: ListQuery{CreatedAfter: "yesterday"}, wantErr: biddingerrors.ErrValidation},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			views, err := service.List(ctx, tc.query, tc.viewer)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			ids := make([]uuid.UUID, 0, len(views))
			for _, v := range views {
				ids = append(ids, v.Auction.ID)
			}
			require.ElementsMatch(t, tc.wantIDs, ids)
		})
	}
}

func TestAuctionService_ListMineAndAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, _ := newService(t, Policy{})
	seller := newUser(model.RoleSeller, model.StatusActive)
	otherSeller := newUser(model.RoleSeller, model.StatusActive)
	admin := newUser(model.RoleAdmin, model.StatusActive)

	mine, err := service.Create(ctx, seller, validInput())
	require.NoError(t, err)
	_, err = service.Create(ctx, otherSeller, validInput())
	require.NoError(t, err)

	views, err := service.ListMine(ctx, seller, "")
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, mine.Auction.ID, views[0].Auction.ID)

	_, err = service.ListMine(ctx, newUser(model.RoleBuyer, model.StatusActive), "")
	require.ErrorIs(t, err, biddingerrors.ErrPermission)

	all, err := service.ListAll(ctx, admin, "active")
	require.NoError(t, err)
	require.Len(t, all, 2)

	_, err = service.ListAll(ctx, seller, "")
	require.ErrorIs(t, err, biddingerrors.ErrPermission)
}

func TestAuctionService_Update(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	seller := newUser(model.RoleSeller, model.StatusActive)

	t.Run("applies_fields", func(t *testing.T) {
		t.Parallel()
		service, _ := newService(t, Policy{})
		created, err := service.Create(ctx, seller, validInput())
		require.NoError(t, err)

		updated, err := service.Update(ctx, seller, created.Auction.ID, Input{
			Title:    strPtr("Clio RS"),
			MinPrice: strPtr("45000.555"),
			Images:   json.RawMessage(`[]`),
		})
		require.NoError(t, err)
		require.Equal(t, "Clio RS", updated.Auction.Title)
		require.Equal(t, "45000.56", updated.Auction.MinPrice.StringFixed(2))
		require.Empty(t, updated.Auction.ImageURLs)
		require.Equal(t, created.Auction.Description, updated.Auction.Description)
	})

	t.Run("no_fields", func(t *testing.T) {
		t.Parallel()
		service, _ := newService(t, Policy{})
		created, err := service.Create(ctx, seller, validInput())
		require.NoError(t, err)

		_, err = service.Update(ctx, seller, created.Auction.ID, Input{})
		require.ErrorIs(t, err, biddingerrors.ErrValidation)
		msg, _ := biddingerrors.Message(err)
		require.Equal(t, "No valid updates provided", msg)
	})

	t.Run("other_seller_forbidden", func(t *testing.T) {
		t.Parallel()
		service, _ := newService(t, Policy{})
		created, err := service.Create(ctx, seller, validInput())
		require.NoError(t, err)

		_, err = service.Update(ctx, newUser(model.RoleSeller, model.StatusActive), created.Auction.ID, Input{Title: strPtr("x")})
		require.ErrorIs(t, err, biddingerrors.ErrPermission)
		msg, _ := biddingerrors.Message(err)
		require.Equal(t, "Cannot edit another seller's auction", msg)
	})

	t.Run("admin_may_edit", func(t *testing.T) {
		t.Parallel()
		service, _ := newService(t, Policy{})
		created, err := service.Create(ctx, seller, validInput())
		require.NoError(t, err)

		_, err = service.Update(ctx, newUser(model.RoleAdmin, model.StatusActive), created.Auction.ID, Input{Currency: strPtr("gbp")})
		require.NoError(t, err)
	})

	t.Run("not_found", func(t *testing.T) {
		t.Parallel()
		service, _ := newService(t, Policy{})
		_, err := service.Update(ctx, seller, uuid.New(), Input{Title: strPtr("x")})
		require.ErrorIs(t, err, biddingerrors.ErrNotFound)
	})
}

func TestAuctionService_LockAfterFirstBid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	seller := newUser(model.RoleSeller, model.StatusActive)

	tests := []struct {
		name    string
		lock    bool
		wantErr error
	}{
		{name: "permissive", lock: false, wantErr: nil},
		{name: "locked", lock: true, wantErr: biddingerrors.ErrInvalidState},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			service, repo := newService(t, Policy{LockAfterFirstBid: tc.lock})
			created, err := service.Create(ctx, seller, validInput())
			require.NoError(t, err)
			placeBid(t, repo, created.Auction.ID, uuid.New(), "60000")

			_, updateErr := service.Update(ctx, seller, created.Auction.ID, Input{Title: strPtr("new")})
			deleteErr := service.Delete(ctx, seller, created.Auction.ID)
			if tc.wantErr != nil {
				require.ErrorIs(t, updateErr, tc.wantErr)
				require.ErrorIs(t, deleteErr, tc.wantErr)
				return
			}
			require.NoError(t, updateErr)
			require.NoError(t, deleteErr)
		})
	}
}

func TestAuctionService_DeleteCascades(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, repo := newService(t, Policy{})
	seller := newUser(model.RoleSeller, model.StatusActive)
	created, err := service.Create(ctx, seller, validInput())
	require.NoError(t, err)
	bid := placeBid(t, repo, created.Auction.ID, uuid.New(), "60000")

	err = service.Delete(ctx, newUser(model.RoleSeller, model.StatusActive), created.Auction.ID)
	require.ErrorIs(t, err, biddingerrors.ErrPermission)

	err = service.Delete(ctx, newUser(model.RoleBuyer, model.StatusActive), created.Auction.ID)
	require.ErrorIs(t, err, biddingerrors.ErrPermission)

	require.NoError(t, service.Delete(ctx, seller, created.Auction.ID))

	_, err = repo.GetBid(ctx, bid.ID)
	require.ErrorIs(t, err, biddingerrors.ErrNotFound)
	_, err = service.Get(ctx, created.Auction.ID, nil)
	require.ErrorIs(t, err, biddingerrors.ErrNotFound)
}

func TestAuctionService_CloseAndCancel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, _ := newService(t, Policy{})
	seller := newUser(model.RoleSeller, model.StatusActive)

	toClose, err := service.Create(ctx, seller, validInput())
	require.NoError(t, err)
	closed, err := service.Close(ctx, seller, toClose.Auction.ID)
	require.NoError(t, err)
	require.Equal(t, model.AuctionClosed, closed.Auction.Status)

	// closing twice is harmless
	_, err = service.Close(ctx, seller, toClose.Auction.ID)
	require.NoError(t, err)

	_, err = service.Cancel(ctx, seller, toClose.Auction.ID)
	require.ErrorIs(t, err, biddingerrors.ErrInvalidState)

	toCancel, err := service.Create(ctx, seller, validInput())
	require.NoError(t, err)
	cancelled, err := service.Cancel(ctx, seller, toCancel.Auction.ID)
	require.NoError(t, err)
	require.Equal(t, model.AuctionCancelled, cancelled.Auction.Status)
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	got, err := ParseTimestamp("2026-06-01T10:00:00+02:00")
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC), got)

	got, err = ParseTimestamp("2026-06-01T10:00:00Z")
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC), got)

	got, err = ParseTimestamp("2026-06-01T10:00:00")
	require.NoError(t, err)
	require.Equal(t, time.UTC, got.Location())

	_, err = ParseTimestamp("not a time")
	require.Error(t, err)
}

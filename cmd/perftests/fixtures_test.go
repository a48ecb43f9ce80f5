package perftests

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	bidding "vehicle-auction/internal/biddingService"
	model "vehicle-auction/internal/models"
	"vehicle-auction/internal/repository"
)

// newAuction returns an active auction open for the next day
func newAuction(i int, minPrice int64) model.Auction {
	start := time.Now().UTC().Add(-time.Minute)
	end := start.Add(24 * time.Hour)
	return model.Auction{
		ID:          uuid.New(),
		SellerID:    uuid.New(),
		Title:       fmt.Sprintf("Benchmark vehicle %d", i),
		Description: "Independent benchmark auction",
		MinPrice:    decimal.NewFromInt(minPrice),
		Currency:    "EUR",
		Status:      model.AuctionActive,
		StartAt:     &start,
		EndAt:       &end,
		CreatedAt:   start,
	}
}

func newBuyer(name string) model.User {
	return model.User{ID: uuid.New(), Username: name, Role: model.RoleBuyer, Status: model.StatusActive}
}

// setupRepo creates a memory store seeded with numAuctions auctions
func setupRepo(numAuctions int, policy bidding.Policy) (*repository.MemoryRepo, *bidding.BiddingService, []model.Auction) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo, policy)
	auctions := make([]model.Auction, numAuctions)
	for i := range auctions {
		auctions[i] = newAuction(i, 100)
		repo.AddAuction(auctions[i])
	}
	return repo, svc, auctions
}

func amount(v int64) string {
	return decimal.NewFromInt(v).String()
}

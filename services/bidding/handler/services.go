package handler

import (
	"context"

	"github.com/google/uuid"

	auction "vehicle-auction/internal/auctionService"
	"vehicle-auction/internal/models"
	users "vehicle-auction/internal/userService"
)

//go:generate mockgen -source=services.go -destination=mock_services.go -package=handler

type BiddingServiceInterface interface {
	PlaceBid(ctx context.Context, auctionID uuid.UUID, buyer models.User, rawAmount string) (models.Bid, error)
	GetBidsForAuction(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error)
	GetWinningBid(ctx context.Context, auctionID uuid.UUID) (models.Bid, error)
}

type AuctionServiceInterface interface {
	Create(ctx context.Context, seller models.User, in auction.Input) (auction.View, error)
	List(ctx context.Context, q auction.ListQuery, viewer *models.User) ([]auction.View, error)
	ListMine(ctx context.Context, seller models.User, status string) ([]auction.View, error)
	ListAll(ctx context.Context, admin models.User, status string) ([]auction.View, error)
	Get(ctx context.Context, id uuid.UUID, viewer *models.User) (auction.View, error)
	Update(ctx context.Context, user models.User, id uuid.UUID, in auction.Input) (auction.View, error)
	Delete(ctx context.Context, user models.User, id uuid.UUID) error
	Close(ctx context.Context, user models.User, id uuid.UUID) (auction.View, error)
	Cancel(ctx context.Context, user models.User, id uuid.UUID) (auction.View, error)
}

type UserServiceInterface interface {
	Register(ctx context.Context, in users.RegisterInput) (models.User, error)
	Login(ctx context.Context, identifier, password string) (users.Session, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	RegisterDevice(ctx context.Context, user models.User, token string) (models.Device, error)
	ListUsers(ctx context.Context, admin models.User) ([]models.User, error)
	CreateUser(ctx context.Context, admin models.User, in users.CreateUserInput) (models.User, error)
	UpdateUser(ctx context.Context, admin models.User, id uuid.UUID, in users.UpdateUserInput) (models.User, error)
	Invite(ctx context.Context, admin models.User, email, role string) error
	ResetPassword(ctx context.Context, admin models.User, id uuid.UUID) error
}

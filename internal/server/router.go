package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vehicle-auction/internal/models"
	handler "vehicle-auction/services/bidding/handler"
)

// Services groups everything the HTTP layer depends on
type Services struct {
	Bidding  handler.BiddingServiceInterface
	Auctions handler.AuctionServiceInterface
	Users    handler.UserServiceInterface
	Auth     Authenticator
	// Gatherer backs GET /metrics; nil disables the endpoint
	Gatherer prometheus.Gatherer
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(s Services) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestIDMiddleware)     // correlate logs and responses
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(s.Bidding)
	auctionHandler := handler.NewAuctionHandler(s.Auctions)
	userHandler := handler.NewUserHandler(s.Users)

	requireAuth := RequireAuth(s.Auth)
	optionalAuth := OptionalAuth(s.Auth)
	adminOnly := RequireRole(models.RoleAdmin)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))
	}

	auth := router.Group("/auth")
	{
		auth.POST("/register", userHandler.RegisterHandler)
		auth.POST("/login", userHandler.LoginHandler)
		auth.POST("/refresh", userHandler.RefreshHandler)
		auth.POST("/invite", requireAuth, adminOnly, userHandler.InviteHandler)
		auth.POST("/reset", requireAuth, adminOnly, userHandler.ResetPasswordHandler)
	}

	auctions := router.Group("/auctions")
	{
		auctions.GET("", optionalAuth, auctionHandler.ListAuctionsHandler)
		auctions.POST("", requireAuth, auctionHandler.CreateAuctionHandler)
		auctions.GET("/mine", requireAuth, auctionHandler.ListMyAuctionsHandler)
		auctions.GET("/manage", requireAuth, adminOnly, auctionHandler.ListAllAuctionsHandler)
		auctions.GET("/:id", optionalAuth, auctionHandler.GetAuctionHandler)
		auctions.PATCH("/:id", requireAuth, auctionHandler.UpdateAuctionHandler)
		auctions.DELETE("/:id", requireAuth, auctionHandler.DeleteAuctionHandler)
		auctions.POST("/:id/close", requireAuth, auctionHandler.CloseAuctionHandler)
		auctions.POST("/:id/cancel", requireAuth, auctionHandler.CancelAuctionHandler)
		auctions.POST("/:id/bids", requireAuth, biddingHandler.RecordBidHandler)
		auctions.GET("/:id/bids", biddingHandler.GetBidsByAuctionHandler)
		auctions.GET("/:id/best-bid", biddingHandler.GetWinningBidHandler)
	}

	notifications := router.Group("/notifications")
	{
		notifications.POST("/devices", requireAuth, userHandler.RegisterDeviceHandler)
	}

	admin := router.Group("/admin", requireAuth, adminOnly)
	{
		admin.GET("/users", userHandler.ListUsersHandler)
		admin.POST("/users", userHandler.CreateUserHandler)
		admin.PATCH("/users/:id", userHandler.UpdateUserHandler)
	}

	return router
}

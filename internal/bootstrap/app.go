// Package bootstrap wires configuration, storage, services and transports into a runnable App.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	auction "vehicle-auction/internal/auctionService"
	"vehicle-auction/internal/auth"
	bidding "vehicle-auction/internal/biddingService"
	"vehicle-auction/internal/config"
	"vehicle-auction/internal/metrics"
	"vehicle-auction/internal/notifier"
	"vehicle-auction/internal/push"
	"vehicle-auction/internal/repository"
	"vehicle-auction/internal/server"
	users "vehicle-auction/internal/userService"
	"vehicle-auction/internal/worker"
	"vehicle-auction/utils"
)

const shutdownTimeout = 10 * time.Second

// App owns every long-lived component of the process
type App struct {
	Config      *config.Config
	Log         *logrus.Logger
	DB          *gorm.DB
	Store       repository.Store
	Dispatcher  *notifier.Dispatcher
	AsynqClient *asynq.Client
	AsynqServer *worker.Server
	HttpServer  *http.Server
}

// NewApp builds the application from cfg
func NewApp(cfg *config.Config) (*App, error) {
	log := utils.SetupLogger(cfg.LogLevel, cfg.IsProduction())
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	app := &App{Config: cfg, Log: log}

	store, err := app.openStore()
	if err != nil {
		return nil, err
	}
	app.Store = store

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	biddingSvc := bidding.NewBiddingService(store, bidding.Policy{
		StrictOrdering: cfg.BidStrict,
		Quota:          cfg.BidQuota,
	}, bidding.WithMetrics(m))
	auctionSvc := auction.NewAuctionService(store, auction.Policy{
		LockAfterFirstBid: cfg.LockAfterBid,
	}, auction.WithMetrics(m))
	userSvc := users.NewUserService(store, tokens)

	logEntry := log.WithField("service", "vehicle-auction")
	sender := push.NewExpoClient(cfg.PushEndpoint, cfg.PushTimeout, logEntry)

	exec, err := app.newExecutor(logEntry)
	if err != nil {
		return nil, err
	}
	dispatcher := notifier.NewDispatcher(store, sender, exec, notifier.WithMetrics(m), notifier.WithLogger(logEntry))
	store.OnCommit(dispatcher.OnCommit)
	app.Dispatcher = dispatcher
	if cfg.PushMode == notifier.ModeQueue {
		app.AsynqServer = worker.NewServer(app.redisOpt(), cfg.QueueConcurrent, dispatcher, log)
	}

	router := server.SetupRouter(server.Services{
		Bidding:  biddingSvc,
		Auctions: auctionSvc,
		Users:    userSvc,
		Auth:     userSvc,
		Gatherer: registry,
	})

	app.HttpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.WithFields(logrus.Fields{
		"store":          storeKind(cfg),
		"push_mode":      cfg.PushMode,
		"strict_bidding": cfg.BidStrict,
		"bid_quota":      cfg.BidQuota,
	}).Info("Application assembled")
	return app, nil
}

func (a *App) openStore() (repository.Store, error) {
	if a.Config.UseMemoryStore() {
		a.Log.Warn("DATABASE_DSN not set, using in-memory store")
		return repository.NewMemoryRepo(), nil
	}

	db, err := repository.Open(a.Config.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	if a.Config.DBAutoMigrate {
		if err := repository.Migrate(db); err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		a.Log.Info("Database schema migrated")
	}
	a.DB = db
	return repository.NewGormRepo(db), nil
}

// newExecutor picks the delivery executor for the configured mode
func (a *App) newExecutor(log *logrus.Entry) (notifier.Executor, error) {
	switch a.Config.PushMode {
	case notifier.ModeInline:
		return notifier.InlineExecutor{}, nil
	case notifier.ModeDisabled:
		return notifier.DisabledExecutor{}, nil
	case notifier.ModeQueue:
		a.AsynqClient = asynq.NewClient(a.redisOpt())
		return notifier.NewQueueExecutor(a.AsynqClient, "", log), nil
	case notifier.ModeAsync:
		return notifier.NewAsyncExecutor(notifier.DefaultDeliveryTimeout, log), nil
	default:
		return nil, fmt.Errorf("bootstrap: unsupported push mode %q", a.Config.PushMode)
	}
}

func (a *App) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     a.Config.RedisAddr,
		Password: a.Config.RedisPassword,
		DB:       a.Config.RedisDB,
	}
}

func storeKind(cfg *config.Config) string {
	if cfg.UseMemoryStore() {
		return "memory"
	}
	return "mysql"
}

// Start launches the worker and the HTTP server in background goroutines
func (a *App) Start() {
	if a.AsynqServer != nil {
		go a.AsynqServer.Start()
		a.Log.Info("Asynq worker server routine started")
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown stops accepting requests, drains pending deliveries and closes connections
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	if err := a.Dispatcher.Close(ctx); err != nil {
		a.Log.Errorf("Pending deliveries abandoned: %v", err)
	}

	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}

	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Log.Errorf("Error closing database connection: %v", err)
			}
		}
	}
	a.Log.Info("Application shut down.")
}

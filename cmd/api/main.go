package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/logger"
	"storefront/internal/server"

	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *server.Server, stopListener context.CancelFunc, logger *zap.Logger, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	logger.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	// ends open event streams along with the listener
	stopListener()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := apiServer.Close(); err != nil {
		logger.Error("Error closing server resources", zap.Error(err))
	}

	logger.Info("Server exiting")

	done <- true
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting storefront API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Name),
	)

	dbService, err := database.New(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database health check", zap.Any("health", dbService.Health()))

	if err := database.RunMigrations(dbService.DB(), log); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	log.Info("Database migrations completed successfully")

	redisClient, err := database.NewRedisClient(cfg.Redis)
	if err != nil {
		// tints are resampled and logins go unlimited without Redis
		log.Warn("Redis unavailable, continuing without it", zap.Error(err))
		redisClient = nil
	}

	if cfg.JWT.Secret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	srv := server.NewServer(cfg, log, dbService, redisClient)

	if cfg.Admin.Email != "" && cfg.Admin.Password != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		admin, err := srv.Auth().EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password, "Admin")
		cancel()
		if err != nil {
			log.Fatal("Failed to bootstrap admin account", zap.Error(err))
		}
		log.Info("Admin account ready", zap.String("email", admin.Email))
	}

	listenerCtx, stopListener := context.WithCancel(context.Background())
	srv.BaseContext = func(net.Listener) context.Context { return listenerCtx }
	go srv.RunListener(listenerCtx)

	done := make(chan bool, 1)
	go gracefulShutdown(srv, stopListener, log, done)

	log.Info("Server listening", zap.String("addr", srv.Addr))

	err = srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("HTTP server error", zap.Error(err))
	}

	<-done
	log.Info("Graceful shutdown complete")
}

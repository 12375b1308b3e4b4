package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"storefront/internal/color"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/live"
	"storefront/internal/metrics"
	custommiddleware "storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/transport"
	"storefront/internal/upload"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Server is the storefront HTTP server and the resources it owns.
type Server struct {
	*http.Server
	config   *config.Config
	logger   *zap.Logger
	db       database.Service
	redis    *redis.Client
	listener *live.Listener
	auth     service.AuthService
	admin    service.AdminService
}

// NewServer wires repositories, services and handlers onto one router.
// redisClient may be nil.
func NewServer(cfg *config.Config, logger *zap.Logger, db database.Service, redisClient *redis.Client) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Initialize repositories
	userRepo := repository.NewUserRepository(db.DB())
	refreshTokenRepo := repository.NewRefreshTokenRepository(db.DB())
	productRepo := repository.NewProductRepository(db.DB())

	listener := live.NewListener(db.DB(), logger)
	feed := live.NewFeed(listener, productRepo, logger)

	samplerOpts := []color.Option{
		color.WithMetrics(m),
		color.WithTimeout(cfg.Color.FetchTimeout),
	}
	if redisClient != nil {
		samplerOpts = append(samplerOpts, color.WithCache(color.NewRedisCache(redisClient, cfg.Color.CacheTTL, logger)))
	}
	sampler := color.NewSampler(logger, samplerOpts...)
	uploader := upload.NewCloudinary(cfg.Cloudinary, nil, m, logger)

	// Initialize services
	authService := service.NewAuthService(userRepo, refreshTokenRepo, cfg.JWT, logger)
	catalogService := service.NewCatalogService(productRepo, sampler, feed, cfg.Store, logger)
	adminService := service.NewAdminService(productRepo, logger)

	router := chi.NewRouter()
	router.Use(custommiddleware.DefaultMiddlewareStack()...)
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.IsDevelopment()))
	router.Use(custommiddleware.MetricsMiddleware(m))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	// event streams must not be buffered by the compressor
	router.Use(middleware.Compress(5, "application/json"))

	router.Get("/health", healthHandler(db))
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	loginLimiter := custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.LoginRateLimit, logger)

	transport.NewCatalogHandler(catalogService, cfg.Store, logger).RegisterRoutes(router)
	transport.NewAuthHandler(authService, logger).RegisterRoutes(router, authMiddleware, loginLimiter)
	transport.NewAdminHandler(adminService, uploader, logger).
		RegisterRoutes(router, authMiddleware, custommiddleware.RequireAdmin(logger))

	router.NotFound(notFoundHandler)

	return &Server{
		Server: &http.Server{
			Addr:        fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:     router,
			IdleTimeout: time.Minute,
			ReadTimeout: 10 * time.Second,
			// no WriteTimeout: it would cut off event streams
		},
		config:   cfg,
		logger:   logger,
		db:       db,
		redis:    redisClient,
		listener: listener,
		auth:     authService,
		admin:    adminService,
	}
}

// Auth returns the auth service, used to bootstrap the admin account.
func (s *Server) Auth() service.AuthService {
	return s.auth
}

// Admin returns the product management service.
func (s *Server) Admin() service.AdminService {
	return s.admin
}

// RunListener feeds catalog changes to live subscribers until ctx is done.
func (s *Server) RunListener(ctx context.Context) {
	if err := s.listener.Run(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("Change listener stopped", zap.Error(err))
	}
}

func healthHandler(db database.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := db.Health()
		status := http.StatusOK
		if health["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		custommiddleware.RespondWithJSON(w, status, health)
	}
}

// notFoundHandler sends unknown pages back to the storefront home.
func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}
	custommiddleware.RespondWithError(w, http.StatusNotFound, "route not found")
}

// Close releases the database and Redis connections.
func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis connection", zap.Error(err))
		}
	}

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database connection", zap.Error(err))
	}

	s.logger.Sync()
	return nil
}

// Package server is the composition root: it opens the database, builds the
// services and handlers, mounts the routes and runs the HTTP server until a
// shutdown signal arrives.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/video-portal/internal/auth"
	"github.com/sakif/video-portal/internal/billing"
	"github.com/sakif/video-portal/internal/config"
	"github.com/sakif/video-portal/internal/handler"
	"github.com/sakif/video-portal/internal/metrics"
	"github.com/sakif/video-portal/internal/middleware"
	"github.com/sakif/video-portal/internal/policy"
	sqliteRepo "github.com/sakif/video-portal/internal/repository/sqlite"
	"github.com/sakif/video-portal/internal/service"
	"github.com/sakif/video-portal/internal/storage"
)

// Server owns the router and the resources that must be released on
// shutdown: the database pool and in-flight login writes.
type Server struct {
	router     *chi.Mux
	config     config.Config
	logger     *slog.Logger
	db         *sqliteRepo.DB
	metrics    *metrics.Registry
	identities *service.IdentityService
	startedAt  time.Time
}

type options struct {
	billing  service.BillingClient
	blobs    storage.BlobStore
	provider handler.OAuthProvider
}

// Option replaces an external dependency, mainly for tests.
type Option func(*options)

func WithBillingClient(c service.BillingClient) Option {
	return func(o *options) { o.billing = c }
}

func WithBlobStore(b storage.BlobStore) Option {
	return func(o *options) { o.blobs = b }
}

func WithOAuthProvider(p handler.OAuthProvider) Option {
	return func(o *options) { o.provider = p }
}

// New opens the database and wires every route.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		logger:    logger,
		db:        db,
		metrics:   metrics.New(),
		startedAt: time.Now(),
	}

	if o.billing == nil {
		o.billing = billing.NewClient(cfg.Stripe.SecretKey, billing.WithMetrics(s.metrics))
	}
	if o.provider == nil {
		o.provider = auth.NewDiscordProvider(cfg.Discord.ClientID, cfg.Discord.ClientSecret, cfg.Discord.CallbackURL)
	}
	if o.blobs == nil && cfg.S3.Enabled() {
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PublicURL:       cfg.S3.PublicURL,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating media store: %w", err)
		}
		o.blobs = store
	}
	if o.blobs == nil {
		logger.Warn("media storage not configured, file uploads are disabled")
	}

	if err := s.setupRoutes(o); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes builds the dependency chain and mounts it.
//
// Middleware order: request id and real ip first so everything after sees
// them; logging and metrics outside the recoverer so a panic is still
// recorded as a 500.
func (s *Server) setupRoutes(o options) error {
	cfg := s.config

	profiles := s.db.Profiles()
	videos := s.db.Videos()
	events := s.db.WebhookEvents()

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return err
	}

	sessions := service.NewSessionService(profiles, cfg.OwnerDiscordID, s.logger)
	s.identities = service.NewIdentityService(profiles, cfg.OwnerDiscordID, cfg.LoginPersistTimeout, s.logger, s.metrics)
	profileService := service.NewProfileService(profiles, s.logger)
	checkoutService := service.NewCheckoutService(profiles, o.billing, cfg.Stripe.ProductID, s.logger)
	subscriptionService := service.NewSubscriptionService(profiles, o.billing, s.logger)
	webhookService := service.NewWebhookService(profiles, events, cfg.Stripe.WebhookSecret, s.logger, s.metrics)
	videoService := service.NewVideoService(videos, o.blobs, service.Buckets{
		Video:     cfg.S3.VideoBucket,
		Thumbnail: cfg.S3.ThumbnailBucket,
	}, s.logger)

	authn := auth.NewAuthenticator(tokens, sessions, cfg.SessionRefreshInterval, cfg.CookieSecure, s.logger)

	authHandler := handler.NewAuthHandler(o.provider, s.identities, profileService, authn, cfg.CookieSecure, s.logger)
	billingHandler := handler.NewBillingHandler(checkoutService, subscriptionService, webhookService, cfg.SiteURL, s.logger)
	userHandler := handler.NewUserHandler(profileService)
	videoHandler := handler.NewVideoHandler(videoService, s.logger)

	loginLimit := middleware.NewRateLimiter("login", 30, 10, s.metrics)
	checkoutLimit := middleware.NewRateLimiter("checkout", cfg.CheckoutRateLimit, cfg.CheckoutRateLimit, s.metrics)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", handler.HandleHealth(s.db, s.startedAt))
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/auth", func(r chi.Router) {
		r.With(loginLimit.Handler).Get("/discord/login", authHandler.HandleDiscordLogin)
		r.With(loginLimit.Handler).Get("/discord/callback", authHandler.HandleDiscordCallback)
		r.Post("/logout", authHandler.HandleLogout)
		r.With(authn.RequireAuth).Post("/refresh", authHandler.HandleRefresh)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsOrigins(cfg),
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))

		// Signed by the processor; no session.
		// Processor deliveries are never throttled.
		r.Post("/webhooks/stripe", billingHandler.HandleWebhook)

		r.With(authn.OptionalAuth).Get("/videos", videoHandler.HandleList)

		r.Group(func(r chi.Router) {
			r.Use(authn.RequireAuth)

			r.Get("/me", authHandler.HandleMe)
			r.Get("/videos/{id}", videoHandler.HandleGet)

			r.With(checkoutLimit.Handler, auth.RequireAction(policy.ActionInitiateCheckout)).
				Post("/checkout", billingHandler.HandleCheckout)
			r.With(auth.RequireAction(policy.ActionCancelSubscription)).
				Post("/subscription/cancel", billingHandler.HandleCancel)

			r.Post("/users/update-role", userHandler.HandleUpdateRole)
			r.With(auth.RequireAction(policy.ActionListProfiles)).Get("/users", userHandler.HandleList)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAction(policy.ActionManageVideos))
				r.Post("/upload", videoHandler.HandleUpload)
				r.Patch("/videos/{id}", videoHandler.HandleUpdate)
				r.Delete("/videos/{id}", videoHandler.HandleDelete)
			})
		})
	})

	return nil
}

func corsOrigins(cfg config.Config) []string {
	if len(cfg.CORSOrigins) > 0 {
		return cfg.CORSOrigins
	}
	if cfg.SiteURL != "" {
		return []string{cfg.SiteURL}
	}
	return []string{fmt.Sprintf("http://localhost:%d", cfg.Port)}
}

// Start runs the server until SIGINT or SIGTERM, then drains in-flight
// requests and login writes before closing the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// Video uploads may be hundreds of megabytes.
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.Env),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.identities.Wait()
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/guildecon/economy-api/internal/account"
	"github.com/guildecon/economy-api/internal/auth"
	"github.com/guildecon/economy-api/internal/catalog"
	"github.com/guildecon/economy-api/internal/database"
	"github.com/guildecon/economy-api/internal/guildconfig"
	"github.com/guildecon/economy-api/internal/market"
	"github.com/guildecon/economy-api/internal/ratelimit"
	"github.com/guildecon/economy-api/pkg/middleware"
	"github.com/guildecon/economy-api/pkg/response"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the economy API server with graceful shutdown
// support. It sets up the database, item catalog, market service and API
// routes.
func main() {
	// Initialize database
	db, err := database.NewDatabase(os.Getenv("DATABASE_PATH"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Load the item catalog
	var items *catalog.Service
	if packPath := os.Getenv("CONTENT_PACK"); packPath != "" {
		items, err = catalog.LoadPack(packPath)
		if err != nil {
			zlog.Fatal().Err(err).Msg("Failed to load content pack")
		}
	} else {
		zlog.Warn().Msg("CONTENT_PACK not set, starting with an empty catalog")
		items = catalog.NewService(nil)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "economy-secret-key"
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	guilds := guildconfig.NewService(db)
	cooldowns := ratelimit.NewCooldowns()

	marketService := market.NewService(db, items, guilds, cooldowns, market.NewTransactor(db))
	marketHandlers := market.NewGinHandlers(marketService)
	accountHandlers := account.NewGinHandlers(marketService.Accounts())

	// Background workers: cooldown pruning and listing expiry
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go cooldowns.Run(workerCtx.Done())
	go runExpirySweeper(workerCtx, marketService)

	// Setup API routes
	setupRoutes(router, jwtSecret, authHandlers, accountHandlers, marketHandlers, marketService)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// runExpirySweeper cancels expired listings on a fixed cadence, returning
// their escrow to the sellers.
func runExpirySweeper(ctx context.Context, svc *market.Service) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := svc.ExpireListings(ctx, time.Now(), 100); err != nil {
				zlog.Error().Err(err).Msg("expiry sweep failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Account and market routes: Protected by JWT authentication
// - Internal routes: Protected by the internal permission
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	accountHandlers *account.GinHandlers,
	marketHandlers *market.GinHandlers,
	marketService *market.Service,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes: rate limited by client IP since no user is known yet
		authGroup := v1.Group("/auth")
		authGroup.Use(middleware.RateLimit())
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Account routes: the limiter runs after auth so it keys per user
		accounts := v1.Group("/accounts")
		accounts.Use(middleware.JWTAuth(jwtSecret), middleware.RateLimit())
		{
			accounts.GET("/me", accountHandlers.MeHandler())
		}

		// Market routes
		marketGroup := v1.Group("/market")
		marketGroup.Use(middleware.JWTAuth(jwtSecret), middleware.RateLimit())
		{
			marketGroup.GET("/listings", marketHandlers.BrowseListingsHandler())
			marketGroup.GET("/listings/mine", marketHandlers.MyListingsHandler())
			marketGroup.POST("/listings", marketHandlers.CreateListingHandler())
			marketGroup.POST("/listings/:listing_id/buy", marketHandlers.BuyListingHandler())
			marketGroup.POST("/listings/:listing_id/cancel", marketHandlers.CancelListingHandler())
		}

		// Internal routes (should also be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/market/expire", func(c *gin.Context) {
				expired, err := marketService.ExpireListings(c.Request.Context(), time.Now(), 500)
				response.Handle(c, gin.H{"expired": expired}, err)
			})
		}
	}
}

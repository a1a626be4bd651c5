package api

import (
	"log/slog"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/lodestone-crm/lodestone-backend/internal/api/handlers"
	"github.com/lodestone-crm/lodestone-backend/internal/api/middleware"
	"github.com/lodestone-crm/lodestone-backend/internal/repository"
	"github.com/lodestone-crm/lodestone-backend/internal/storage"
)

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	DB     *gorm.DB
	Engine handlers.SyncEngine
	Logger *slog.Logger
	// WebhookBaseURL is the public base URL push notifications target
	WebhookBaseURL string
	// Bodies resolves offloaded message bodies (nil = inline only)
	Bodies storage.BodyStore
	// Security configuration
	APIKey         string   // API key for authentication (empty = disabled)
	AllowedOrigins []string // Allowed CORS origins
	RateLimit      int      // Requests per second (0 = use env default)
	RateBurst      int      // Burst size for rate limiter
	EnableAuth     bool     // Enable API key authentication
}

// NewRouter creates and configures the Echo router with all routes
func NewRouter(cfg *RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Security Middleware (applied in correct order)
	// 1. Recover from panics
	e.Use(middleware.Recover())

	// 2. Security headers (applied to all responses)
	e.Use(middleware.SecureHeaders())

	// 3. CORS - Set environment variable if origins provided in config
	if len(cfg.AllowedOrigins) > 0 {
		os.Setenv("ALLOWED_ORIGINS", strings.Join(cfg.AllowedOrigins, ","))
	}
	e.Use(middleware.SecureCORS())

	// 4. Rate limiting - use RateLimiterWithConfig if custom values provided
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiterWithConfig(float64(cfg.RateLimit), cfg.RateBurst, cfg.Logger))
	} else {
		e.Use(middleware.RateLimiter(cfg.Logger))
	}

	// 5. Request logging
	if cfg.Logger != nil {
		e.Use(middleware.RequestLogger(cfg.Logger))
	}

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(cfg.DB)
	messageRepo := repository.NewMessageRepository(cfg.DB)
	threadRepo := repository.NewThreadRepository(cfg.DB)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB)
	accountHandler := handlers.NewAccountHandler(accountRepo, messageRepo, cfg.Engine, cfg.WebhookBaseURL)
	messageHandler := handlers.NewMessageHandler(messageRepo, accountRepo, cfg.Bodies)
	threadHandler := handlers.NewThreadHandler(threadRepo, accountRepo)
	syncHandler := handlers.NewSyncHandler(cfg.Engine)
	webhookHandler := handlers.NewWebhookHandler(accountRepo, cfg.Engine, cfg.Logger)

	// Health routes (no auth required)
	e.GET("/health", healthHandler.Health)
	e.GET("/ready", healthHandler.Ready)

	// Webhook routes (no auth; authenticity is proven per provider, via the
	// clientState secret for Graph and the Pub/Sub subscription for Gmail)
	e.POST("/webhooks/graph", webhookHandler.Graph)
	e.POST("/webhooks/gmail", webhookHandler.Gmail)

	// Apply API key authentication if enabled
	// Set API_KEY env var if provided in config
	if cfg.EnableAuth && cfg.APIKey != "" {
		os.Setenv("API_KEY", cfg.APIKey)
	}

	// Internal sync trigger, used by operators and the classification
	// pipeline. Same auth policy as /api.
	internal := e.Group("/internal")
	internal.Use(middleware.APIKeyAuth(cfg.Logger))
	internal.POST("/sync/:id", syncHandler.Trigger)

	// API routes
	api := e.Group("/api")
	api.Use(middleware.APIKeyAuth(cfg.Logger))

	// Account routes
	accounts := api.Group("/accounts")
	accounts.POST("", accountHandler.Create)
	accounts.GET("", accountHandler.List)
	accounts.GET("/:id", accountHandler.Get)
	accounts.DELETE("/:id", accountHandler.Delete)
	accounts.PUT("/:id/credentials", accountHandler.UpdateCredentials)
	accounts.POST("/:id/realtime", accountHandler.EnableRealtime)
	accounts.DELETE("/:id/realtime", accountHandler.DisableRealtime)
	accounts.POST("/:id/sync", syncHandler.Trigger)

	// Message routes (nested under accounts)
	accounts.GET("/:account_id/messages", messageHandler.List)
	accounts.GET("/:account_id/threads", threadHandler.List)

	// Message routes (standalone)
	messages := api.Group("/messages")
	messages.GET("/:id", messageHandler.Get)
	messages.GET("/:id/body", messageHandler.GetBody)
	messages.PATCH("/:id/read", messageHandler.MarkAsRead)
	messages.PATCH("/:id/unread", messageHandler.MarkAsUnread)
	messages.DELETE("/:id", messageHandler.Delete)

	// Thread routes (standalone)
	threads := api.Group("/threads")
	threads.GET("/:id", threadHandler.Get)

	return e
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lodestone-crm/lodestone-backend/internal/api"
	"github.com/lodestone-crm/lodestone-backend/internal/config"
	"github.com/lodestone-crm/lodestone-backend/internal/database"
	"github.com/lodestone-crm/lodestone-backend/internal/dispatch"
	"github.com/lodestone-crm/lodestone-backend/internal/providers"
	"github.com/lodestone-crm/lodestone-backend/internal/providers/gmail"
	"github.com/lodestone-crm/lodestone-backend/internal/providers/graph"
	"github.com/lodestone-crm/lodestone-backend/internal/providers/imap"
	"github.com/lodestone-crm/lodestone-backend/internal/repository"
	"github.com/lodestone-crm/lodestone-backend/internal/storage"
	syncengine "github.com/lodestone-crm/lodestone-backend/internal/sync"
	"github.com/lodestone-crm/lodestone-backend/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWithValidation()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	cfg.LogConfig(logger)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		return err
	}

	accountRepo := repository.NewAccountRepository(db)
	cursorRepo := repository.NewCursorRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	threadRepo := repository.NewThreadRepository(db)

	bodies, err := storage.NewLocalStore(cfg.BodyStoragePath)
	if err != nil {
		return fmt.Errorf("failed to initialize body storage: %w", err)
	}

	// Credential resolution is delegated; the engine only carries opaque
	// references. The static source is the development stand-in.
	creds := providers.NewStaticCredentialSource()
	registry := providers.NewRegistry(
		graph.New(creds),
		gmail.New(creds, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GooglePubSubTopic),
		imap.New(creds),
	)

	var dispatcher dispatch.Dispatcher
	if cfg.DispatchDisabled {
		dispatcher = dispatch.NewNopDispatcher(logger)
	} else {
		dispatcher, err = dispatch.NewJetStreamDispatcher(cfg.NATSURL, cfg.DispatchSubject)
		if err != nil {
			return fmt.Errorf("failed to connect dispatcher: %w", err)
		}
	}
	defer dispatcher.Close()

	hub := websocket.NewHub(logger)
	go hub.Run()

	engine := syncengine.NewEngine(syncengine.EngineConfig{
		Accounts:   accountRepo,
		Cursors:    cursorRepo,
		Messages:   messageRepo,
		Threads:    threadRepo,
		Registry:   registry,
		Dispatcher: dispatcher,
		Notifier:   hub,
		Bodies:     bodies,
		Logger:     logger,
		Retry:      syncengine.DefaultRetryPolicy(cfg.SyncRetryBaseDelay),
		MaxBackoff: cfg.MaxSyncBackoff,
	})

	scheduler := syncengine.NewScheduler(engine, accountRepo, syncengine.SchedulerConfig{
		TickInterval: cfg.SchedulerInterval,
		SyncTimeout:  10 * time.Minute,
	}, logger)
	scheduler.Start()
	defer scheduler.Stop()

	e := api.NewRouter(&api.RouterConfig{
		DB:             db,
		Engine:         engine,
		Logger:         logger,
		WebhookBaseURL: cfg.WebhookPublicBaseURL,
		Bodies:         bodies,
		APIKey:         cfg.APIKey,
		AllowedOrigins: splitOrigins(cfg.AllowedOrigins),
		RateLimit:      int(cfg.RateLimitRequests),
		RateBurst:      cfg.RateLimitBurst,
		EnableAuth:     cfg.APIKey != "",
	})
	e.GET("/ws", serveWS(hub, logger))

	// Serve in the background so shutdown signals are handled here.
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		logger.Info("starting HTTP server", slog.String("addr", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
	return nil
}

// serveWS upgrades a connection and hands it to the hub.
func serveWS(hub *websocket.Hub, logger *slog.Logger) echo.HandlerFunc {
	upgrader := websocket.NewSecureUpgrader(logger)
	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}
		client := websocket.NewClient(hub, conn, logger)
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
		return nil
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func splitOrigins(origins string) []string {
	if origins == "" {
		return nil
	}
	var out []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

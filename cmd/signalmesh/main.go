package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/signalmesh/server/internal/api"
	"github.com/signalmesh/server/internal/auth"
	"github.com/signalmesh/server/internal/config"
	"github.com/signalmesh/server/internal/httputil"
	"github.com/signalmesh/server/internal/postgres"
	"github.com/signalmesh/server/internal/presence"
	"github.com/signalmesh/server/internal/room"
	"github.com/signalmesh/server/internal/session"
	"github.com/signalmesh/server/internal/userdb"
	"github.com/signalmesh/server/internal/valkey"
)

// Build metadata injected via ldflags at compile time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.IsDevelopment() {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}

	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", date).
		Str("env", cfg.ServerEnv).
		Msg("Starting signalmesh server")

	if cfg.CORSAllowOrigins == "*" {
		log.Warn().Msg("CORS_ALLOW_ORIGINS is set to a wildcard. Set an explicit origin when in production.")
	}

	ctx := context.Background()

	var db *pgxpool.Pool
	store, closeStore, err := newUserDBStore(ctx, cfg, &db)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb, err := valkey.Connect(ctx, cfg.ValkeyURL, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connect valkey: %w", err)
	}
	defer func() { _ = rdb.Close() }()
	log.Info().Msg("Valkey connected")

	presenceService := presence.NewService(store, cfg.PresenceAuthTTL, log.Logger)
	defer presenceService.Stop()

	roomManager := room.NewManager(presenceService, log.Logger)
	defer roomManager.Stop()

	sessionManager := session.NewManager(presenceService, roomManager, cfg.DebugCommandsEnabled, log.Logger)
	defer sessionManager.Stop()

	authService := auth.NewService(store, rdb, cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, cfg.JWTIssuer, log.Logger)

	app := fiber.New(fiber.Config{
		AppName: "signalmesh",
		ErrorHandler: func(c fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			message := "An internal error occurred"
			code := httputil.InternalError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
				message = fe.Message
				code = fiberStatusToErrorCode(fe.Code)
			} else {
				log.Error().Err(err).
					Str("method", c.Method()).
					Str("path", c.Path()).
					Msg("Unhandled error")
			}
			return c.Status(status).JSON(httputil.ErrorResponse{
				Error: httputil.ErrorBody{Code: code, Message: message},
			})
		},
	})

	app.Use(requestid.New())
	app.Use(httputil.RequestLogger(log.Logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Split(cfg.CORSAllowOrigins, ","),
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"X-Request-ID"},
	}))

	registerRoutes(app, db, rdb, authService, sessionManager, log.Logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	log.Info().Str("addr", addr).Msg("Server listening")

	if err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// newUserDBStore constructs the configured userdb.Store backend. For the postgres backend
// it also connects and runs migrations, stashing the pool into *dbOut so the health route
// can ping it; the file backend leaves *dbOut nil. The returned closer releases whatever
// resources were opened, and is always safe to call.
func newUserDBStore(ctx context.Context, cfg *config.Config, dbOut **pgxpool.Pool) (userdb.Store, func(), error) {
	switch cfg.UserDBBackend {
	case config.UserDBBackendPostgres:
		db, err := postgres.Connect(ctx, cfg.DatabaseURL, 10, 2)
		if err != nil {
			return nil, func() {}, fmt.Errorf("connect postgres: %w", err)
		}
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			db.Close()
			return nil, func() {}, fmt.Errorf("run migrations: %w", err)
		}
		log.Info().Msg("PostgreSQL connected")

		store, err := userdb.NewPostgresStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, func() {}, fmt.Errorf("load postgres userdb: %w", err)
		}
		*dbOut = db
		return store, func() { db.Close() }, nil
	default:
		store, err := userdb.NewFileStore(ctx, cfg.UserDBPath)
		if err != nil {
			return nil, func() {}, fmt.Errorf("load file userdb: %w", err)
		}
		log.Info().Str("path", cfg.UserDBPath).Msg("File userdb loaded")
		return store, func() {}, nil
	}
}

func registerRoutes(app *fiber.App, db *pgxpool.Pool, rdb *redis.Client, authService *auth.Service, sessionManager *session.Manager, logger zerolog.Logger) {
	health := &api.HealthHandler{DB: db, Redis: rdb}
	app.Get("/api/v1/health", health.Health)

	authHandler := &api.AuthHandler{Auth: authService}
	authGroup := app.Group("/api/v1/auth")
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/refresh", authHandler.Refresh)

	gatewayHandler := api.NewGatewayHandler(sessionManager, logger)
	app.Get("/ws", gatewayHandler.Upgrade)
}

// fiberStatusToErrorCode maps an HTTP status code from Fiber's built-in errors (404, 405,
// etc.) to the closest ErrorCode.
func fiberStatusToErrorCode(status int) httputil.ErrorCode {
	switch status {
	case fiber.StatusNotFound:
		return httputil.NotFound
	case fiber.StatusUnauthorized:
		return httputil.Unauthorised
	default:
		if status >= 400 && status < 500 {
			return httputil.ValidationError
		}
		return httputil.InternalError
	}
}

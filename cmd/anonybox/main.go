package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tienphuckx/anony-box-backbone/internal/api"
	"github.com/tienphuckx/anony-box-backbone/internal/apperr"
	"github.com/tienphuckx/anony-box-backbone/internal/authz"
	"github.com/tienphuckx/anony-box-backbone/internal/config"
	"github.com/tienphuckx/anony-box-backbone/internal/gateway"
	"github.com/tienphuckx/anony-box-backbone/internal/group"
	"github.com/tienphuckx/anony-box-backbone/internal/httputil"
	"github.com/tienphuckx/anony-box-backbone/internal/message"
	"github.com/tienphuckx/anony-box-backbone/internal/postgres"
	"github.com/tienphuckx/anony-box-backbone/internal/ratelimit"
	"github.com/tienphuckx/anony-box-backbone/internal/user"
	"github.com/tienphuckx/anony-box-backbone/internal/waitinglist"
)

// Build metadata injected via ldflags at compile time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// server holds the shared dependencies used by route handlers and middleware.
type server struct {
	cfg         *config.Config
	groupRepo   group.Repository
	waitRepo    waitinglist.Repository
	messageRepo message.Repository
	authorizer  *authz.Authorizer
	hub         *gateway.Hub
	directory   *gateway.Directory
	dispatcher  *gateway.Dispatcher
	joinLimit   *ratelimit.Limiter
}

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
		Msg("Starting anonybox server")

	if cfg.WebClient == "*" {
		log.Warn().Msg("WEB_CLIENT is set to a wildcard. Set an explicit origin when in production.")
	}

	ctx := context.Background()

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	log.Info().Msg("PostgreSQL connected")

	if err := postgres.Migrate(cfg.DatabaseURL, log.Logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Msg("Database migrations complete")

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		opts, err := redis.ParseURL(cfg.ValkeyURL)
		if err != nil {
			return fmt.Errorf("parse VALKEY_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect valkey: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		log.Info().Msg("Valkey connected")
	} else {
		log.Warn().Msg("VALKEY_URL is not configured. Join-attempt rate limiting is disabled.")
	}

	userRepo := user.NewPGRepository(db, log.Logger)
	groupRepo := group.NewPGRepository(db, log.Logger)
	messageRepo := message.NewPGRepository(db, log.Logger)
	waitRepo := waitinglist.NewPGRepository(db, log.Logger)

	authorizer := authz.New(userRepo, groupRepo)
	hub := gateway.NewHub(cfg.GatewayTopicBacklog)
	directory := gateway.NewDirectory()
	dispatcher := gateway.NewDispatcher(authorizer, groupRepo, messageRepo, hub, directory, cfg.MessageMaxContentRunes, log.Logger)

	var joinLimiter *ratelimit.Limiter
	if rdb != nil {
		joinLimiter = ratelimit.New(rdb, cfg.RateLimitJoinCount, time.Duration(cfg.RateLimitJoinWindowSeconds)*time.Second)
	}

	subCtx, subCancel := context.WithCancel(ctx)
	defer subCancel()

	go sweepExpiredGroups(subCtx, groupRepo, cfg.GroupExpirySweepInterval)

	app := fiber.New(fiber.Config{
		AppName: "anonybox",
		ErrorHandler: func(c fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			msg := "an internal error occurred"
			kind := apperr.Unknown
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				status = fiberErr.Code
				msg = fiberErr.Message
				kind = kindForStatus(status)
			} else {
				log.Error().Err(err).
					Str("method", c.Method()).
					Str("path", c.Path()).
					Msg("unhandled error")
			}
			return httputil.Fail(c, status, kind, msg)
		},
	})

	app.Use(requestid.New())
	app.Use(httputil.RequestLogger(log.Logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  []string{cfg.WebClient},
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "x-user-code"},
		ExposeHeaders: []string{"X-Request-ID"},
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        200,
		Expiration: time.Minute,
	}))

	srv := &server{
		cfg:         cfg,
		groupRepo:   groupRepo,
		waitRepo:    waitRepo,
		messageRepo: messageRepo,
		authorizer:  authorizer,
		hub:         hub,
		directory:   directory,
		dispatcher:  dispatcher,
		joinLimit:   joinLimiter,
	}
	var pinger api.Pinger
	if rdb != nil {
		pinger = redisPinger{client: rdb}
	}
	srv.registerRoutes(app, db, pinger, userRepo)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("shutting down server")
		subCancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.ServerAddress, cfg.ServerPort)
	log.Info().Str("addr", addr).Msg("server listening")

	if err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func (s *server) registerRoutes(app *fiber.App, db *pgxpool.Pool, redis api.Pinger, userRepo user.Repository) {
	requireAuth := api.RequireAuth(s.authorizer)

	health := api.NewHealthHandler(db, redis)
	app.Get("/api/v1/health", health.Health)

	userHandler := api.NewUserHandler(userRepo, log.Logger)
	app.Post("/api/v1/users", userHandler.CreateUser)

	groupHandler := api.NewGroupHandler(s.groupRepo, s.waitRepo, s.authorizer, s.dispatcher, s.joinLimit, log.Logger)
	messageHandler := api.NewMessageHandler(s.messageRepo, s.authorizer, log.Logger)
	attachmentHandler := api.NewAttachmentHandler(s.cfg.AttachmentStorageDir, s.cfg.AttachmentMaxBytes, "/attachments", log.Logger)
	gatewayHandler := api.NewGatewayHandler(s.dispatcher, s.hub, s.cfg.GatewayOutboundBuffer, s.cfg.GatewayAuthTimeout, log.Logger)

	app.Get("/api/v1/gateway", gatewayHandler.Upgrade)

	groupGroup := app.Group("/api/v1/groups", requireAuth)
	groupGroup.Post("/", groupHandler.CreateGroup)
	groupGroup.Get("/mine", groupHandler.ListMine)
	groupGroup.Get("/by-code/:code", groupHandler.GetByCode)
	groupGroup.Post("/by-code/:code/join", groupHandler.Join)
	groupGroup.Get("/:groupID/waiting", groupHandler.ListWaiting)
	groupGroup.Post("/:groupID/waiting/:entryID/decide", groupHandler.DecideWaiting)
	groupGroup.Delete("/:groupID/members/:userID", groupHandler.RemoveMember)
	groupGroup.Delete("/:groupID", groupHandler.DeleteGroup)
	groupGroup.Get("/:groupID/messages", messageHandler.List)

	app.Post("/api/v1/attachments", requireAuth, attachmentHandler.Upload)

	app.Static("/attachments", s.cfg.AttachmentStorageDir)

	app.Use(func(_ fiber.Ctx) error {
		return fiber.ErrNotFound
	})
}

// redisPinger adapts *redis.Client to the api.Pinger interface.
type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }

// kindForStatus maps an HTTP status from Fiber's built-in errors (404, 405,
// etc.) to the closest apperr.Kind.
func kindForStatus(status int) apperr.Kind {
	switch status {
	case fiber.StatusNotFound:
		return apperr.NotFound
	case fiber.StatusForbidden:
		return apperr.Forbidden
	case fiber.StatusUnauthorized:
		return apperr.Unauthorized
	default:
		return apperr.Unknown
	}
}

// sweepExpiredGroups deletes every group past its expiry once, then on
// interval until ctx is cancelled.
func sweepExpiredGroups(ctx context.Context, groups group.Repository, interval time.Duration) {
	sweep := func() {
		n, err := groups.DeleteExpired(ctx, time.Now())
		if err != nil {
			log.Warn().Err(err).Msg("group expiry sweep failed")
			return
		}
		if n > 0 {
			log.Info().Int64("deleted", n).Msg("swept expired groups")
		}
	}

	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

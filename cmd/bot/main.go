package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	discordtransport "github.com/spec-kit/ticket-tracker/internal/api/discord"
	httptransport "github.com/spec-kit/ticket-tracker/internal/api/http"
	"github.com/spec-kit/ticket-tracker/internal/api/http/handlers"
	"github.com/spec-kit/ticket-tracker/internal/auth"
	"github.com/spec-kit/ticket-tracker/internal/commands"
	"github.com/spec-kit/ticket-tracker/internal/config"
	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/host"
	"github.com/spec-kit/ticket-tracker/internal/observability"
	"github.com/spec-kit/ticket-tracker/internal/persistence"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	"github.com/spec-kit/ticket-tracker/internal/service"
	"github.com/spec-kit/ticket-tracker/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(cfg, os.Args[2:]); err != nil {
			log.Fatalf("issue token: %v", err)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var (
		ticketRepo  repository.TicketRepository
		configRepo  repository.ConfigRepository
		historyRepo repository.TicketHistoryRepository
	)
	if pg.Enabled() {
		ticketRepo = repository.NewTicketRepository(pg.PoolHandle())
		configRepo = repository.NewConfigRepository(pg.PoolHandle())
		historyRepo = repository.NewTicketHistoryRepository(pg.PoolHandle())
	} else {
		ticketRepo = repository.NewMemoryTicketRepository()
		configRepo = repository.NewMemoryConfigRepository()
		historyRepo = repository.NewMemoryTicketHistoryRepository()
	}

	var locker service.ClaimLocker
	var cache service.SettingsCache
	if redis.Enabled() {
		locker = service.NewRedisClaimLocker(redis.Client, cfg.Claims.LockTTL())
		cache = service.NewRedisSettingsCache(redis.Client, cfg.Claims.SettingsCacheTTL())
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger.Named("events"))
	worker.StartNotificationWorker(dispatcher, logger, metrics)
	historyService := worker.StartHistoryWorker(dispatcher, historyRepo)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		Dispatcher: dispatcher,
		Logger:     logger.Named("tickets"),
	})
	configService := service.NewConfigService(service.ConfigDependencies{
		ConfigRepo:   configRepo,
		Cache:        cache,
		DefaultLimit: cfg.Claims.DefaultLimit,
		Dispatcher:   dispatcher,
		Logger:       logger.Named("settings"),
	})
	claimService := service.NewClaimService(service.ClaimDependencies{
		Tickets:  ticketService,
		Settings: configService,
		Locker:   locker,
		Logger:   logger.Named("claims"),
	})

	surface := commands.NewSurface(commands.Dependencies{
		Tickets:  ticketService,
		Claims:   claimService,
		Settings: configService,
		Logger:   logger.Named("commands"),
		Metrics:  metrics,
	})

	session := host.NewSession(cfg.Discord.BotToken, logger.Named("discord"))
	router := discordtransport.NewRouter(discordtransport.RouterDependencies{
		Surface: surface,
		Tickets: ticketService,
		Config:  cfg.Discord,
		Logger:  logger.Named("router"),
	})
	router.Register(session)
	if err := session.Start(ctx); err != nil {
		logger.Fatal("failed to start discord session", zap.Error(err))
	}

	resolver := host.NewDiscordResolver(session.Discord())
	reconcilers := []*worker.Reconciler{
		worker.NewReconciler(worker.ReconcilerConfig{
			Name:       "fast",
			Period:     cfg.Reconcile.FastPeriod(),
			Tickets:    ticketService,
			Resolver:   resolver,
			Connection: session,
			Logger:     logger.Named("reconcile.fast"),
			Metrics:    metrics,
		}),
	}
	if period := cfg.Reconcile.SlowPeriod(); period > 0 {
		reconcilers = append(reconcilers, worker.NewReconciler(worker.ReconcilerConfig{
			Name:       "slow",
			Period:     period,
			Tickets:    ticketService,
			Resolver:   resolver,
			Connection: session,
			Logger:     logger.Named("reconcile.slow"),
			Metrics:    metrics,
		}))
	}
	for _, r := range reconcilers {
		if err := r.Start(ctx); err != nil {
			logger.Fatal("failed to start reconciler", zap.String("loop", r.Name()), zap.Error(err))
		}
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger.Named("http"), metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, session),
		Tickets:        handlers.NewTicketsHandler(ticketService, claimService, configService, historyService),
		Config:         handlers.NewConfigHandler(configService, metrics),
		AuthMiddleware: auth.NewAuthMiddleware(auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	for _, r := range reconcilers {
		if err := r.Stop(stopCtx); err != nil {
			logger.Warn("reconciler did not stop cleanly", zap.String("loop", r.Name()), zap.Error(err))
		}
	}
	if err := session.Stop(); err != nil {
		logger.Warn("discord session close failed", zap.Error(err))
	}
	_ = app.ShutdownWithTimeout(shutdownTimeout)
}

// issueToken prints a reporting API token: token <subject> [support|admin].
func issueToken(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: token <subject> [support|admin]")
	}
	levelName := "support"
	if len(args) > 1 {
		levelName = args[1]
	}
	level, ok := auth.ParseLevel(levelName)
	if !ok {
		return fmt.Errorf("unknown level %q", levelName)
	}
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	token, expires, err := tokens.GenerateToken(args[0], level)
	if err != nil {
		return err
	}
	fmt.Printf("%s\nexpires %s\n", token, expires.Format(time.RFC3339))
	return nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

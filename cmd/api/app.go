package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/desk-ticket-service/internal/api/http"
	"github.com/spec-kit/desk-ticket-service/internal/api/http/handlers"
	"github.com/spec-kit/desk-ticket-service/internal/auth"
	"github.com/spec-kit/desk-ticket-service/internal/cache"
	"github.com/spec-kit/desk-ticket-service/internal/clock"
	"github.com/spec-kit/desk-ticket-service/internal/config"
	"github.com/spec-kit/desk-ticket-service/internal/domain"
	"github.com/spec-kit/desk-ticket-service/internal/events"
	"github.com/spec-kit/desk-ticket-service/internal/observability"
	"github.com/spec-kit/desk-ticket-service/internal/persistence"
	"github.com/spec-kit/desk-ticket-service/internal/repository"
	"github.com/spec-kit/desk-ticket-service/internal/service"
	"github.com/spec-kit/desk-ticket-service/internal/sla"
)

type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	http       *fiber.App
	escalation *service.EscalationService
	closers    []func()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// newApp wires stores, services and the HTTP surface. Without POSTGRES_DSN
// the in-memory stores are used and catalogPath seeds the catalog.
func newApp(ctx context.Context, catalogPath string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, pg.Close)

	var (
		ticketRepo  repository.TicketRepository
		historyRepo repository.TicketHistoryRepository
		catalog     repository.ServiceCatalog
		txManager   repository.TxManager
		pgPinger    handlers.Pinger
	)
	if pg.Enabled() {
		pool := pg.PoolHandle()
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
				a.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		ticketRepo = repository.NewTicketRepository(pool)
		historyRepo = repository.NewTicketHistoryRepository(pool)
		catalog = repository.NewServiceCatalogRepository(pool)
		txManager = repository.NewTxManager(pool)
		pgPinger = pg
	} else {
		defs, err := loadCatalog(catalogPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		logger.Warn("using in-memory ticket store", zap.Int("service_definitions", len(defs)))
		ticketRepo = repository.NewMemoryTicketRepository()
		historyRepo = repository.NewMemoryTicketHistoryRepository()
		catalog = repository.NewMemoryServiceCatalog(defs...)
		txManager = repository.NewNoopTxManager()
	}

	rdb := persistence.NewRedis(cfg.Redis, logger)
	a.closers = append(a.closers, rdb.Close)
	var redisPinger handlers.Pinger
	if rdb.Handle() != nil {
		redisPinger = rdb
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	var ticketCache service.TicketCache
	if tc := cache.NewTicketCache(rdb.Handle(), cfg.Cache.TicketTTL(), logger); tc != nil {
		ticketCache = tc
	}
	var locker service.Locker
	if l := cache.NewLocker(rdb.Handle()); l != nil {
		locker = l
	}

	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, logger).RegisterHandlers()

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		Catalog:     catalog,
		HistoryRepo: historyRepo,
		TxManager:   txManager,
		Cache:       ticketCache,
		Dispatcher:  dispatcher,
		Clock:       clock.NewSystem(),
		Classifier:  sla.NewClassifier(cfg.SLA.DueNow(), cfg.SLA.DueSoon()),
		Metrics:     metrics,
		Logger:      logger,
		Options: service.TicketOptions{
			TitleMaxLength:   cfg.Tickets.TitleMaxLength,
			DetailsMaxLength: cfg.Tickets.DetailsMaxLength,
			RequireLocator:   cfg.Tickets.RequireLocator,
			MaxWriteRetries:  cfg.Tickets.MaxWriteRetries,
		},
	})
	a.escalation = service.NewEscalationService(ticketService, locker, logger, service.EscalationOptions{
		BatchSize: cfg.Escalation.BatchSize,
		LockTTL:   cfg.Escalation.LockTTL(),
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	a.http = fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
	})
	httptransport.RegisterMiddlewares(a.http, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(a.http, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pgPinger, redisPinger),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		StaffTickets:   handlers.NewStaffTicketsHandler(ticketService, a.escalation),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Gatherer:       registry,
	})
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func loadCatalog(path string) ([]domain.ServiceDefinition, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var defs []domain.ServiceDefinition
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	return defs, nil
}

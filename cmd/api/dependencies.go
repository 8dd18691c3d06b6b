package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	importhandler "github.com/FACorreiaa/collections-import/internal/domain/import/handler"
	"github.com/FACorreiaa/collections-import/internal/domain/import/normalizer"
	importrepo "github.com/FACorreiaa/collections-import/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/collections-import/internal/domain/import/service"
	"github.com/FACorreiaa/collections-import/pkg/config"
	"github.com/FACorreiaa/collections-import/pkg/cron"
	"github.com/FACorreiaa/collections-import/pkg/db"
	"github.com/FACorreiaa/collections-import/pkg/metrics"
	"github.com/FACorreiaa/collections-import/pkg/middleware"
	"github.com/FACorreiaa/collections-import/pkg/notify"
	"github.com/FACorreiaa/collections-import/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	ImportRepo *importrepo.PostgresBulkRepository
	AliasStore *normalizer.ClientAliasStore

	// Services
	Matcher       *normalizer.ClientMatcher
	ImportService *importservice.ImportService
	FileStorage   storage.Storage
	Metrics       *metrics.ImportMetrics
	Registry      *prometheus.Registry
	RateLimiter   *middleware.RateLimiter
	Scheduler     *cron.Scheduler

	// Handlers
	ImportHandler *importhandler.ImportHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initRepositories(ctx); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := deps.initServices(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase(ctx context.Context) error {
	database, err := db.New(ctx, db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes the stores and warms the alias matcher.
func (d *Dependencies) initRepositories(ctx context.Context) error {
	d.ImportRepo = importrepo.NewPostgresBulkRepository(d.DB.Pool, d.Logger)
	d.AliasStore = normalizer.NewClientAliasStore(d.DB.Pool)

	d.Matcher = normalizer.NewClientMatcher(nil, d.Config.Import.MatchThreshold)
	n, err := d.Matcher.Refresh(ctx, d.AliasStore)
	if err != nil {
		return fmt.Errorf("failed to load client aliases: %w", err)
	}

	d.Logger.Info("repositories initialized", slog.Int("client_aliases", n))
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	icfg := d.Config.Import

	policy, err := normalizer.ParseParseFailurePolicy(icfg.ParseFailurePolicy)
	if err != nil {
		return err
	}
	method, err := normalizer.ParsePaymentMethod(icfg.DefaultMethod)
	if err != nil {
		return err
	}

	catalog, err := normalizer.LoadCatalog(icfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	fileStorage, err := storage.New(&storage.Config{LocalPath: icfg.StoragePath})
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.FileStorage = fileStorage

	opts := []importservice.Option{
		importservice.WithClientResolver(d.Matcher),
		importservice.WithAliasRecorder(d.AliasStore),
		importservice.WithStorage(d.FileStorage),
	}

	if d.Config.Observability.MetricsEnabled {
		d.Registry = prometheus.NewRegistry()
		d.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		d.Metrics = metrics.New(d.Registry)
		opts = append(opts, importservice.WithMetrics(d.Metrics))
	}

	// A nil *EmailNotifier must not reach the interface.
	if notifier := notify.NewEmailNotifier(notify.Config{
		APIKey: d.Config.Notify.ResendAPIKey,
		From:   d.Config.Notify.From,
		To:     d.Config.Notify.To,
	}, d.Logger); notifier != nil {
		opts = append(opts, importservice.WithNotifier(notifier))
	} else {
		d.Logger.Info("import email notifications disabled")
	}

	d.ImportService = importservice.NewImportService(d.ImportRepo, importservice.Config{
		DefaultExchangeRate: icfg.DefaultExchangeRate,
		DefaultMethod:       method,
		Currency:            icfg.DefaultCurrency,
		Policy:              policy,
		MaxFileBytes:        d.Config.Server.MaxUploadBytes,
		Catalog:             catalog,
	}, d.Logger, opts...)

	d.RateLimiter = middleware.NewRateLimiter(d.Config.Server.RateLimitPerSecond, d.Config.Server.RateLimitBurst)

	d.Scheduler = cron.NewScheduler(cron.Config{
		SweepSchedule: icfg.SweepSchedule,
		PendingTTL:    icfg.PendingTTL,
		AliasSchedule: icfg.AliasRefresh,
	}, d.ImportService, d.Matcher, d.AliasStore, d.Logger, d.RateLimiter)

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() {
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.AliasStore, d.Matcher, d.Config.Server.MaxUploadBytes, d.Logger)
	d.Logger.Info("handlers initialized")
}

// Router builds the HTTP handler tree.
func (d *Dependencies) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", d.health).Methods(http.MethodGet)
	if d.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(d.RateLimiter.Middleware)
	d.ImportHandler.Register(api)

	c := cors.New(cors.Options{
		AllowedOrigins:   d.Config.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	})

	return middleware.Logging(d.Logger)(c.Handler(r))
}

func (d *Dependencies) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := d.DB.Pool.Ping(ctx); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}

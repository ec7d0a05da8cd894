package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"sfex/internal/archive"
	"sfex/internal/config"
	"sfex/internal/constants"
	"sfex/internal/logger"
	"sfex/internal/parser"
	"sfex/internal/pipeline"
	"sfex/internal/rules"
	"sfex/internal/vault"
	"sfex/internal/vendors"
	"sfex/pkg/bootstrap"
	"sfex/pkg/health"
	"sfex/pkg/logging"
	"sfex/pkg/metrics"
	"sfex/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	redis          *redis.Client
	postgresDB     *sql.DB
	mongoClient    *mongo.Client
	store          *vendors.Store
	vaultClient    *vault.Client
	orchestrator   *pipeline.Orchestrator
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("pipeline-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initVault(ctx); err != nil {
		return fmt.Errorf("failed to initialize secret store: %w", err)
	}

	if err := a.InitBroker("pipeline-service"); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initPipeline(); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, "pipeline-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterPipelineMetrics()
	metrics.RegisterBrokerMetrics()
	if a.vaultClient != nil {
		metrics.RegisterVaultMetrics()
	}
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.initHTTPServer(ctx); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redis = rdb

	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.postgresDB = db

	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return err
	}
	a.mongoClient = mongoClient

	if a.postgresDB != nil && a.Config.Database.RunMigrations {
		if err := archive.RunPostgresMigrations(a.postgresDB, a.Config.Database.MigrationsPath); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		a.Logger.Info("PostgreSQL migrations applied")
	}

	if a.mongoClient != nil {
		if err := archive.EnsureArchiveCollection(ctx, a.mongoDatabase()); err != nil {
			return fmt.Errorf("failed to prepare archive collection: %w", err)
		}
	}

	return nil
}

func (a *App) initVault(ctx context.Context) error {
	if a.Config.Vault.Address == "" {
		return nil // Vault is optional; encrypted vendor files will be rejected
	}

	client := vault.NewClient(a.Config.Vault, a.Logger)
	if _, err := client.ValidateConnectivity(ctx); err != nil {
		return err
	}
	a.vaultClient = client
	return nil
}

func (a *App) initPipeline() error {
	store, err := vendors.LoadStore(a.Config.Vendors.File)
	if err != nil {
		return fmt.Errorf("failed to load vendor profiles: %w", err)
	}
	a.store = store
	a.Logger.Infow("Vendor profiles loaded", "count", store.Len())

	var archiver archive.Repository
	if a.mongoClient != nil {
		archiver = archive.NewRepository(a.mongoDatabase())
		if a.Config.CircuitBreaker.Enabled {
			archiver = archive.NewCircuitBreakerRepository(archiver, a.Config.CircuitBreaker)
			initCtx := logging.WithServiceName(context.Background(), "pipeline-service")
			a.Logger.InfowCtx(initCtx, "Circuit breaker enabled for archive repository")
		}
	}

	var auditor pipeline.Auditor
	if a.postgresDB != nil {
		auditor = archive.NewAuditLogger(a.postgresDB)
	}

	guard := archive.NewRedisNotifyGuard(a.redis, a.Config.Pipeline.NotifyGuardTTLSeconds)

	opts := pipeline.Options{
		Store:    a.store,
		Parser:   parser.New(a.Logger),
		Engine:   rules.NewEngine(a.store, a.Logger),
		Producer: a.Producer,
		Archiver: archiver,
		Auditor:  auditor,
		Guard:    guard,
		Config:   a.Config.Pipeline,
		Logger:   a.Logger,
	}
	if a.vaultClient != nil {
		opts.Keys = a.vaultClient
	}

	a.orchestrator = pipeline.NewOrchestrator(opts)
	return nil
}

func (a *App) mongoDatabase() *mongo.Database {
	name := a.Config.Database.MongoDB.Database
	if name == "" {
		name = constants.DefaultMongoDBName
	}
	return a.mongoClient.Database(name)
}

func (a *App) initHTTPServer(ctx context.Context) error {
	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	if a.redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redis))
	}
	if a.postgresDB != nil {
		healthRegistry.Register(health.NewPostgreSQLChecker(a.postgresDB))
	}
	if a.mongoClient != nil {
		healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	}
	if a.vaultClient != nil {
		healthRegistry.Register(health.NewFuncChecker("vault", func(ctx context.Context) error {
			_, err := a.vaultClient.ValidateConnectivity(ctx)
			return err
		}))
		if a.Config.Vault.TLSCertificate != "" {
			healthRegistry.Register(health.NewCertExpiryChecker(a.vaultClient.CertificateExpiry, constants.CertExpiryDegradedMargin))
		}
	}
	if pinger, ok := a.Producer.(interface{ Ping(context.Context) error }); ok {
		healthRegistry.Register(health.NewFuncChecker("broker", pinger.Ping))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: mux,
	}

	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		consumeCtx := logging.WithServiceName(gCtx, "pipeline-service")
		a.Logger.InfowCtx(consumeCtx, "Starting file arrival consumer",
			"queue", constants.QueueFileReceived,
		)
		return a.Consumer.Consume(gCtx, constants.QueueFileReceived, a.orchestrator.Handle)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, "pipeline-service")
	a.Logger.InfowCtx(shutdownCtx, "Shutting down pipeline service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.postgresDB, a.mongoClient)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cuongbtq/docflow/internal/api/handler"
	"github.com/cuongbtq/docflow/internal/api/router"
	"github.com/cuongbtq/docflow/internal/config"
	"github.com/cuongbtq/docflow/internal/events"
	"github.com/cuongbtq/docflow/internal/guard"
	"github.com/cuongbtq/docflow/internal/processing"
	"github.com/cuongbtq/docflow/internal/repository"
	"github.com/cuongbtq/docflow/internal/session"
	"github.com/cuongbtq/docflow/internal/upload"
	"github.com/cuongbtq/docflow/internal/workflow"
	"github.com/cuongbtq/docflow/shared/logger"
	"github.com/cuongbtq/docflow/shared/postgresql"
	"github.com/cuongbtq/docflow/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g := guard.New(cfg.Backend.URL, cfg.Backend.AccessKey)
	if !g.Ready() {
		appLogger.Warn("Backend credentials missing, serving in unconfigured mode",
			slog.Any("missing", g.Missing()),
		)
	}

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(dbClient.GetDB().DB, appLogger.Component("migrate")); err != nil {
			return err
		}
	}

	probes := map[string]handler.Probe{"database": dbClient.HealthCheck}

	var publisher workflow.Publisher = events.Noop{}
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		publisher = events.NewPublisher(rabbitClient, events.DefaultSource, appLogger.Component("events"))
		probes["broker"] = func(context.Context) error {
			if !rabbitClient.IsConnected() {
				return errors.New("not connected to RabbitMQ")
			}
			return nil
		}
	}

	bucket, closeBucket, err := initBucket(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeBucket()

	verifier, err := session.NewVerifier(ctx, session.VerifierConfig{
		Secret:  cfg.Auth.JWTSecret,
		JWKSURL: cfg.Auth.JWKSURL,
		Issuer:  cfg.Auth.Issuer,
		Leeway:  cfg.Auth.Leeway,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	repo := repository.NewRepository(dbClient.GetDB(), g, appLogger.Component("repository"))

	svc := workflow.NewService(workflow.Config{
		Records:           repo,
		Uploader:          upload.NewGateway(bucket, g, appLogger.Component("upload")),
		Processor:         initProcessor(&cfg.Processing, g, appLogger.Logger),
		Publisher:         publisher,
		Logger:            appLogger.Component("workflow"),
		Concurrency:       cfg.Workflow.Concurrency,
		ProcessingTimeout: cfg.Workflow.ProcessingTimeout,
		FinalizeTimeout:   cfg.Workflow.FinalizeTimeout,
	})

	r := initRouter(cfg, &handler.Dependencies{
		Logger:         appLogger.Logger,
		Guard:          g,
		Documents:      repo,
		Workflows:      svc,
		Roles:          session.AdminEmails(cfg.Auth.AdminEmails...),
		ServiceName:    cfg.App.Name,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Probes:         probes,
	}, verifier)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.String("error", err.Error()),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// initRabbitMQ initializes the publishing RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// initBucket selects the object store for uploaded assets
func initBucket(ctx context.Context, cfg *config.StorageConfig) (upload.Bucket, func(), error) {
	switch cfg.Driver {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, func() {}, fmt.Errorf("failed to create GCS client: %w", err)
		}
		return upload.NewGCSBucket(client, cfg.Bucket), func() { _ = client.Close() }, nil
	default:
		bucket, err := upload.NewLocalBucket(cfg.LocalPath, cfg.Bucket)
		if err != nil {
			return nil, func() {}, err
		}
		return bucket, func() {}, nil
	}
}

// initProcessor selects the processing backend
func initProcessor(cfg *config.ProcessingConfig, g *guard.Guard, logger *slog.Logger) processing.Processor {
	if cfg.Driver == "stub" {
		logger.Warn("Using stub processor", slog.Duration("latency", cfg.StubLatency))
		return processing.NewStub(cfg.StubLatency)
	}

	return processing.NewHTTPProcessor(processing.HTTPConfig{
		OCRURL:        cfg.OCRURL,
		DocGenURL:     cfg.DocGenURL,
		Timeout:       cfg.Timeout,
		RetryAttempts: uint(cfg.RetryAttempts),
		RetryDelay:    cfg.RetryDelay,
	}, g, &http.Client{}, logger.With(slog.String("component", "processing")))
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, deps *handler.Dependencies, verifier router.TokenVerifier) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps, verifier)
}

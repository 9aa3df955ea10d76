package main

import (
	"context"
	"database/sql"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"docvault/docs"
	"docvault/internal/config"
	"docvault/internal/database"
	"docvault/internal/database/migration"
	"docvault/internal/export"
	handlers "docvault/internal/http/handler"
	"docvault/internal/http/middleware"
	"docvault/internal/logging"
	"docvault/internal/otel"
	"docvault/internal/repository"
	repoMemory "docvault/internal/repository/memory"
	"docvault/internal/repository/postgres"
	"docvault/internal/service"
	"docvault/internal/storage"
	storeMemory "docvault/internal/storage/memory"
)

// multipart framing on top of the file itself
const formOverheadBytes = 1 << 20

// @title Document Vault API
// @version 1.0
// @description Student document storage, download links and batch export.
// @BasePath /
func main() {
	cfg := config.Load()
	log := logging.New(cfg.Log)
	if err := cfg.Validate(); err != nil {
		log.WithField("event", "config_invalid").Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		log.WithField("event", "tracing_init_failed").Fatal(err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	// Metadata store
	var (
		db      *sql.DB
		pinger  handlers.Pinger
		docRepo repository.DocumentRepository
	)
	switch cfg.Metadata.Backend {
	case config.BackendPostgres:
		db, err = database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			log.WithField("event", "db_connect_failed").Fatalf("failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
			log.WithField("event", "db_migration_failed").Fatal(err)
		}
		pinger = db
		docRepo = postgres.NewDocumentPostgres(db)
	default:
		docRepo = repoMemory.NewDocumentMemory()
	}
	docRepo = repository.WithTimeout(docRepo, cfg.Metadata.QueryTimeout)

	// Object store
	var (
		objStore storage.Storage
		memStore *storeMemory.Store
	)
	switch cfg.Storage.Backend {
	case config.BackendMinIO:
		objStore, err = storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			log.WithField("event", "storage_init_failed").Fatalf("failed to initialize object storage: %v", err)
		}
	default:
		memStore = storeMemory.New(strings.TrimRight(cfg.Storage.MemoryBaseURL, "/"), []byte(cfg.Storage.MemorySecret))
		objStore = memStore
	}
	objStore = storage.NewPresignCache(
		storage.WithTimeout(objStore, cfg.Storage.Timeout),
		cfg.Storage.PresignCacheSize,
		cfg.Storage.PresignCacheTTL,
	)

	docSvc := service.NewDocumentService(objStore, docRepo,
		service.WithSignedURLTTL(cfg.Storage.SignedURLTTL),
		service.WithMaxUploadBytes(cfg.Upload.MaxBytes),
		service.WithLogger(log),
	)
	exporter := export.NewOrchestrator(docSvc,
		export.NewZipArchiver(cfg.Export.ArchiveEnabled, cfg.Export.MaxArchiveBytes),
		export.NewHTTPFetcher(cfg.Export.FetchTimeout, cfg.Upload.MaxBytes),
		export.Config{
			Workers:       cfg.Export.Workers,
			FallbackDelay: cfg.Export.FallbackDelay,
			PageSize:      cfg.Export.PageSize,
		},
		export.WithLogger(log),
	)

	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(),
		BodyLimit:             int(cfg.Upload.MaxBytes) + formOverheadBytes,
		DisableStartupMessage: true,
	})

	promMiddleware, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		log.WithField("event", "metrics_init_failed").Fatal(err)
	}

	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(promMiddleware.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	if memStore != nil {
		// Signed URLs of the in-process store resolve here.
		app.Get("/objects/:key", adaptor.HTTPHandler(memStore))
	}

	handlers.RegisterRoutes(app, pinger, docSvc, exporter)

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	go func() {
		<-ctx.Done()
		log.WithField("event", "shutdown").Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(sctx); err != nil {
			log.WithField("event", "shutdown_failed").Error(err)
		}
	}()

	addr := ":" + cfg.Port
	log.WithFields(logrus.Fields{
		"event":    "server_start",
		"addr":     addr,
		"storage":  cfg.Storage.Backend,
		"metadata": cfg.Metadata.Backend,
	}).Info("listening")

	if err := app.Listen(addr); err != nil {
		log.WithField("event", "server_failed").Fatalf("failed to start server: %v", err)
	}
}

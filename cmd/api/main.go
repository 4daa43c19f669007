package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/bryanwahyu/telemetry-insight/internal/application"
	apptelemetry "github.com/bryanwahyu/telemetry-insight/internal/application/telemetry"
	"github.com/bryanwahyu/telemetry-insight/internal/config"
	domain "github.com/bryanwahyu/telemetry-insight/internal/domain/telemetry"
	aiopenai "github.com/bryanwahyu/telemetry-insight/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/telemetry-insight/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/telemetry-insight/internal/infra/db/postgres"
	"github.com/bryanwahyu/telemetry-insight/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/telemetry-insight/internal/infra/storage"
	"github.com/bryanwahyu/telemetry-insight/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	// connect DB sesuai driver
	var (
		db      *sql.DB
		uploads domain.UploadRepository
		jobs    domain.JobRepository
		reports domain.ReportRepository
	)
	switch cfg.Database.Driver {
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		uploads = postgresp.NewUploadRepository(db)
		jobs = postgresp.NewJobRepository(db)
		reports = postgresp.NewReportRepository(db)
	default:
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		uploads = mysqlp.NewUploadRepository(db)
		jobs = mysqlp.NewJobRepository(db)
		reports = mysqlp.NewReportRepository(db)
	}
	defer db.Close()

	// init minio
	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		log.Fatalf("minio init error: %v", err)
	}

	// init service
	svc := &apptelemetry.Service{
		Uploads:      uploads,
		Jobs:         jobs,
		Reports:      reports,
		Artifacts:    store,
		AI:           aiopenai.NewClient(cfg.AI.APIKey, cfg.AI.Model),
		Clock:        application.SystemClock{},
		Model:        cfg.AI.Model,
		StaleAfter:   cfg.Worker.StaleAfter,
		InferTimeout: cfg.AI.Timeout,
	}

	// init router + middleware chain
	checkers := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
		"storage":  middleware.CheckerFunc(store.Ping),
	}

	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Worker-Secret"},
	}))
	// auth first so the tenant is in context for logging and rate limiting
	if len(cfg.Auth.APIKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(cfg.Auth.APIKeys))
	}
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	if cfg.RateLimit.Capacity > 0 && cfg.RateLimit.RefillRate > 0 {
		mux.Use(middleware.RateLimitMiddleware(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate))
	}
	mux.Mount("/", httpserver.NewRouter(svc, cfg.Worker.Secret, checkers))

	// periodic sweep biar job pending tetap jalan walau tidak ada trigger
	if cfg.Worker.SweepInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Worker.SweepInterval)
			defer ticker.Stop()
			for range ticker.C {
				res := svc.ProcessNext(context.Background())
				if res.Status == domain.ResultError {
					log.Printf("sweep error: %s", res.Message)
				}
			}
		}()
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

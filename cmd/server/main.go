package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/garnizeh/bidflow/api"
	dbfs "github.com/garnizeh/bidflow/db"
	"github.com/garnizeh/bidflow/internal/config"
	"github.com/garnizeh/bidflow/internal/db"
	"github.com/garnizeh/bidflow/internal/jobs"
	"github.com/garnizeh/bidflow/internal/milestones"
	"github.com/garnizeh/bidflow/internal/negotiation"
	"github.com/garnizeh/bidflow/internal/payments"
	"github.com/garnizeh/bidflow/internal/repository/sqlstore"
	"github.com/garnizeh/bidflow/internal/scheduler"
	"github.com/garnizeh/bidflow/internal/scheduling"
	"github.com/garnizeh/bidflow/internal/schema"
	"github.com/garnizeh/bidflow/pkg/paygate"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	level := slog.LevelInfo
	if cfg.IsDevelopment() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	api.SetLogger(logger)
	paygate.SetLogger(logger)

	log.Printf("Starting bidflow server version %s (built at %s)", version, buildTime)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open database connection
	database, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN, logger)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, database, dbfs.Migrations); err != nil {
			log.Fatalf("Failed to migrate DB: %v", err)
		}
	}

	store := sqlstore.New(database, logger)
	clock := clockwork.NewRealClock()

	schemas, err := schema.Default()
	if err != nil {
		log.Fatalf("Failed to load schemas: %v", err)
	}
	gateway, err := paygate.NewDefaultClient(cfg.Payments.Gateway)
	if err != nil {
		log.Fatalf("Failed to create payment gateway client: %v", err)
	}

	pay := cfg.Payments
	paymentsSvc := payments.NewService(store, gateway, schemas, clock, payments.Config{
		WebhookSecret: pay.WebhookSecret,
		Tolerance:     pay.Tolerance,
		SessionTTL:    pay.SessionTTL,
		FeePercent:    pay.FeePercent,
		Currency:      pay.Currency,
		SuccessURL:    pay.SuccessURL,
		CancelURL:     pay.CancelURL,
	}, logger)

	sched := cfg.Scheduling
	schedulingSvc := scheduling.NewService(store, schemas, clock, scheduling.Config{
		WebhookSecret: sched.WebhookSecret,
		Tolerance:     sched.Tolerance,
		BookingTTL:    sched.BookingTTL,
		Link:          sched.Link,
	}, logger)

	handler := api.SetupRoutes(cfg, version, buildTime, database.GetConn(), api.Services{
		Negotiations: negotiation.NewService(store, clock, logger),
		Payments:     paymentsSvc,
		Ledger:       milestones.NewLedger(store, clock, logger),
		Scheduling:   schedulingSvc,
	})

	// Background work: auction scheduler and outbox workers
	var releaser jobs.PayoutReleaser = jobs.LogReleaser{Logger: logger}
	if pay.Payouts {
		releaser = payments.NewGatewayReleaser(gateway, pay.Currency, logger)
	}
	pool := jobs.NewWorkerPool(store, jobs.Handlers(releaser, logger), logger, cfg.Jobs.Workers, cfg.Jobs.PollInterval)
	pool.Start(ctx)

	auctions := scheduler.New(store, negotiation.NewAdvancer(store, clock, logger), clock, scheduler.Config{
		Interval:  cfg.Scheduler.Interval,
		BatchSize: cfg.Scheduler.BatchSize,
	}, logger)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		auctions.Run(ctx)
	}()

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	log.Println("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	wg.Wait()
	pool.Stop()
	_ = gateway.Close()

	// Close database connection
	if err := database.Close(); err != nil {
		log.Printf("Error closing DB: %v", err)
	}

	log.Println("Server exited")
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"secureshare/internal/cryptox"
	"secureshare/internal/db"
	"secureshare/internal/server"
)

func main() {
	cfg := server.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Printf("service=backend msg=%q err=%v", "invalid_configuration", err)
		os.Exit(1)
	}

	// Database
	dbConn, err := db.Open(os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Printf("service=backend msg=%q err=%v", "db_connect_failed", err)
		os.Exit(1)
	}
	defer func() { _ = dbConn.Close() }()

	// Run migrations
	log.Printf("service=backend msg=%q", "running_migrations")
	if err := db.RunMigrations(dbConn); err != nil {
		log.Printf("service=backend msg=%q err=%v", "migration_failed", err)
		os.Exit(1)
	}
	log.Printf("service=backend msg=%q", "migrations_complete")

	// Deployment encryption key, loaded once, held in memory only.
	cipher, err := cryptox.NewFromHex(cfg.MasterKeyHex)
	if err != nil {
		log.Printf("service=backend msg=%q err=%v", "cipher_init_failed", err)
		os.Exit(1)
	}

	// Content store
	var store server.ContentStore
	switch cfg.Storage {
	case server.StorageMemory:
		store = server.NewMemoryStore()
		log.Printf("service=backend msg=%q", "using_memory_storage")
	default:
		store, err = server.NewMinioStore(cfg)
		if err != nil {
			log.Printf("service=backend msg=%q err=%v", "minio_init_failed", err)
			os.Exit(1)
		}
	}

	// Malware scanner
	var scanner server.Scanner
	if cfg.ScanEnabled {
		scanner = server.NewClamdScanner(cfg.ClamdAddr, cfg.ClamdWait)
	} else {
		scanner = server.NewPassScanner()
		log.Printf("service=backend msg=%q", "scanning_disabled")
	}

	// Rate limiting: shared Redis window when configured, in-memory
	// otherwise.
	var limiter *server.RateLimiter
	if cfg.RateLimitEnabled {
		if cfg.RedisURL != "" {
			redisRate, err := server.NewRedisRate(cfg.RedisURL)
			if err != nil {
				log.Printf("service=backend msg=%q err=%v", "redis_connect_failed", err)
				os.Exit(1)
			}
			defer func() { _ = redisRate.Close() }()
			limiter = server.NewRateLimiter(cfg, redisRate)
		} else {
			limiter = server.NewRateLimiter(cfg, nil)
		}
	}

	ledger := server.NewLedger(dbConn)

	srv := server.New(cfg, server.Deps{
		DB:      dbConn,
		Ledger:  ledger,
		Store:   store,
		Scanner: scanner,
		Cipher:  cipher,
		Audit:   server.NewAuditTrail(dbConn),
		Limiter: limiter,
	})

	// Residual-ciphertext sweeper (opt-in).
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go server.StartPurgeSweeper(sweepCtx, server.SweeperConfig{
		Enabled:  cfg.SweepEnabled,
		Interval: cfg.SweepInterval,
		Ledger:   ledger,
		Store:    store,
	})

	// Start the HTTP server in a background goroutine so we can
	// listen for OS signals while it runs.
	errCh := make(chan error, 1)
	go func() {
		log.Printf("service=backend msg=%q addr=%s version=%s commit=%s",
			"starting", cfg.Addr, cfg.Build.Version, cfg.Build.Commit)
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("service=backend msg=%q signal=%s", "shutting_down", sig.String())
		stopSweep()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("service=backend msg=%q err=%v", "shutdown_error", err)
			os.Exit(1)
		}
		log.Printf("service=backend msg=%q", "shutdown_complete")
	case err := <-errCh:
		if err != nil {
			log.Printf("service=backend msg=%q err=%v", "server_error", err)
			os.Exit(1)
		}
	}
}

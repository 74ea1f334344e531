package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"listing-audit/internal/config"
	"listing-audit/internal/database"
	"listing-audit/internal/services"
	"listing-audit/internal/services/meli"
	"listing-audit/internal/store"

	"github.com/joho/godotenv"
)

var (
	captureInterval = flag.Duration("interval", 6*time.Hour, "time between capture cycles")
	cycleTimeout    = flag.Duration("timeout", 2*time.Minute, "per-cycle timeout")
)

// Long-running daemon that triggers a capture cycle on a fixed interval. The
// interval lives here, not in the core: the coordinator itself only runs on
// demand.
func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	if cfg.SellerID == "" {
		log.Fatal("SELLER_ID must be set for the watcher")
	}

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	source := meli.NewClient(cfg.MeliBaseURL, func() string { return cfg.MeliAccessToken })
	coordinator := services.NewCoordinator(source, store.NewSnapshotStore(db), store.NewChangeLogStore(db))

	log.Printf("Watcher started (PID %d): seller %s every %v", os.Getpid(), cfg.SellerID, *captureInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*captureInterval)
	defer ticker.Stop()

	runCycle(coordinator, cfg.SellerID, *cycleTimeout)

	for {
		select {
		case <-sigChan:
			log.Println("Shutdown signal received, stopping watcher")
			return
		case <-ticker.C:
			runCycle(coordinator, cfg.SellerID, *cycleTimeout)
		}
	}
}

func runCycle(coordinator *services.Coordinator, sellerID string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := coordinator.CaptureCycle(ctx, sellerID)
	if err != nil {
		// A fetch failure is transient; the next tick retries the whole cycle.
		if errors.Is(err, services.ErrSourceUnavailable) {
			log.Printf("Listing source unavailable, will retry next interval: %v", err)
			return
		}
		log.Printf("Capture cycle failed: %v", err)
		return
	}
	log.Printf("Cycle complete: snapshot %d, %d listings, %d changes", result.SnapshotID, result.ListingCount, result.ChangeCount)
}

package main

import (
	"context"
	"flag"
	"log"
	"time"

	"listing-audit/internal/config"
	"listing-audit/internal/database"
	"listing-audit/internal/services"
	"listing-audit/internal/services/meli"
	"listing-audit/internal/store"

	"github.com/joho/godotenv"
)

var (
	sellerID = flag.String("seller", "", "seller id to capture (defaults to SELLER_ID)")
	timeout  = flag.Duration("timeout", 2*time.Minute, "overall cycle timeout")
)

// One-shot capture cycle from the command line, for cron jobs and manual runs.
func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	seller := *sellerID
	if seller == "" {
		seller = cfg.SellerID
	}
	if seller == "" {
		log.Fatal("no seller id: pass -seller or set SELLER_ID")
	}

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	source := meli.NewClient(cfg.MeliBaseURL, func() string { return cfg.MeliAccessToken })
	coordinator := services.NewCoordinator(source, store.NewSnapshotStore(db), store.NewChangeLogStore(db))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := coordinator.CaptureCycle(ctx, seller)
	if err != nil {
		log.Fatalf("Capture cycle failed: %v", err)
	}
	log.Printf("Capture done: snapshot %d, %d listings, %d changes", result.SnapshotID, result.ListingCount, result.ChangeCount)
}

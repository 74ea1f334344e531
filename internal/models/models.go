package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvariant marks input that violates a data-model invariant, e.g. a
// fetched listing set carrying the same item id twice. Callers reject such
// input instead of letting a later write silently overwrite rows.
var ErrInvariant = errors.New("invariant violation")

// ListingStatus is the normalized marketplace listing status.
type ListingStatus string

const (
	StatusActive ListingStatus = "active"
	StatusPaused ListingStatus = "paused"
	StatusClosed ListingStatus = "closed"
	StatusOther  ListingStatus = "other"
)

// NormalizeStatus maps an upstream status string onto the known set.
func NormalizeStatus(s string) ListingStatus {
	switch ListingStatus(s) {
	case StatusActive, StatusPaused, StatusClosed:
		return ListingStatus(s)
	default:
		return StatusOther
	}
}

// ChangeType classifies one detected difference between consecutive snapshots.
type ChangeType string

const (
	ChangeNew      ChangeType = "new"
	ChangePrice    ChangeType = "price"
	ChangeTitle    ChangeType = "title"
	ChangeCategory ChangeType = "category"
	ChangePaused   ChangeType = "paused"
	ChangeRemoved  ChangeType = "removed"
)

// Snapshot is an immutable point-in-time capture of a seller's listings.
// Rows are insert-only; nothing in the codebase updates or deletes them.
type Snapshot struct {
	ID                uint      `json:"id" gorm:"primaryKey"`
	SellerID          string    `json:"seller_id" gorm:"index;not null"`
	CapturedAt        time.Time `json:"captured_at" gorm:"index;not null"`
	TotalListingCount int       `json:"total_listing_count"`
	TotalSoldUnits    int       `json:"total_sold_units"`
	AverageTicket     *float64  `json:"average_ticket"` // nil when the snapshot has no listings
	RawPayload        string    `json:"-" gorm:"type:longtext"`

	Listings []Listing `json:"listings,omitempty" gorm:"foreignKey:SnapshotID;constraint:OnDelete:CASCADE"`
}

// Listing is one item's state as recorded within a specific snapshot.
type Listing struct {
	ID             uint          `json:"id" gorm:"primaryKey"`
	SnapshotID     uint          `json:"snapshot_id" gorm:"uniqueIndex:idx_snapshot_item;not null"`
	ItemID         string        `json:"item_id" gorm:"uniqueIndex:idx_snapshot_item;index;not null"`
	Title          string        `json:"title"`
	Price          float64       `json:"price"`
	AvailableStock int           `json:"available_stock"`
	SoldCount      int           `json:"sold_count"`
	CategoryID     string        `json:"category_id"`
	Status         ListingStatus `json:"status" gorm:"type:varchar(16)"`
	ThumbnailURL   string        `json:"thumbnail_url"`
	Raw            string        `json:"-" gorm:"type:text"`
}

// ChangeRecord is one detected difference for one item between two
// consecutive snapshots. Append-only, keyed by item id rather than by a
// snapshot pair: it answers "what changed and when".
type ChangeRecord struct {
	ID               uint       `json:"id" gorm:"primaryKey"`
	ItemID           string     `json:"item_id" gorm:"index;not null"`
	ChangeType       ChangeType `json:"change_type" gorm:"type:varchar(16);not null"`
	PreviousValue    string     `json:"previous_value"`
	NewValue         string     `json:"new_value"`
	PercentVariation *float64   `json:"percent_variation"` // price changes only; nil when the previous price was 0
	DetectedAt       time.Time  `json:"detected_at" gorm:"index;not null"`
	SoldCountBefore  *int       `json:"sold_count_before"`
	SoldCountAfter   *int       `json:"sold_count_after"`
}

// Aggregates are the derived totals stored on a snapshot.
type Aggregates struct {
	ListingCount  int
	SoldUnits     int
	AverageTicket *float64
}

// ComputeAggregates derives snapshot totals from a listing set. The average
// ticket is a simple mean of listing prices, not sales-weighted, and is nil
// for an empty set.
func ComputeAggregates(listings []Listing) Aggregates {
	agg := Aggregates{ListingCount: len(listings)}
	if len(listings) == 0 {
		return agg
	}
	var priceSum float64
	for _, l := range listings {
		agg.SoldUnits += l.SoldCount
		priceSum += l.Price
	}
	avg := priceSum / float64(len(listings))
	agg.AverageTicket = &avg
	return agg
}

// ValidateListingSet checks the invariants a fetched listing set must hold
// before it is snapshotted or diffed: item ids present, unique within the
// set, and non-negative prices.
func ValidateListingSet(listings []Listing) error {
	seen := make(map[string]struct{}, len(listings))
	for _, l := range listings {
		if l.ItemID == "" {
			return fmt.Errorf("%w: listing without item id", ErrInvariant)
		}
		if l.Price < 0 {
			return fmt.Errorf("%w: negative price for item %s", ErrInvariant, l.ItemID)
		}
		if _, dup := seen[l.ItemID]; dup {
			return fmt.Errorf("%w: duplicate item id %s", ErrInvariant, l.ItemID)
		}
		seen[l.ItemID] = struct{}{}
	}
	return nil
}

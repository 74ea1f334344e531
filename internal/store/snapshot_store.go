package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"listing-audit/internal/models"

	"gorm.io/gorm"
)

// ErrStorage marks any persistence failure. Callers must not assume a write
// succeeded beyond what was explicitly confirmed.
var ErrStorage = errors.New("storage error")

// SnapshotStore persists snapshots and their listings. Snapshots are
// append-only: there is no update or delete path.
type SnapshotStore struct {
	db *gorm.DB
}

func NewSnapshotStore(db *gorm.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// WriteSnapshot computes the snapshot aggregates from the given listings and
// persists the snapshot together with all of its listings in a single
// transaction. A partial write never becomes visible: either the snapshot and
// every listing land, or nothing does.
func (s *SnapshotStore) WriteSnapshot(ctx context.Context, sellerID string, listings []models.Listing, rawPayload string) (uint, error) {
	if err := models.ValidateListingSet(listings); err != nil {
		return 0, err
	}

	agg := models.ComputeAggregates(listings)
	snapshot := models.Snapshot{
		SellerID:          sellerID,
		CapturedAt:        time.Now().UTC(),
		TotalListingCount: agg.ListingCount,
		TotalSoldUnits:    agg.SoldUnits,
		AverageTicket:     agg.AverageTicket,
		RawPayload:        rawPayload,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&snapshot).Error; err != nil {
			return err
		}
		if len(listings) == 0 {
			return nil
		}
		rows := make([]models.Listing, len(listings))
		copy(rows, listings)
		for i := range rows {
			rows[i].ID = 0
			rows[i].SnapshotID = snapshot.ID
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return 0, fmt.Errorf("%w: write snapshot for seller %s: %v", ErrStorage, sellerID, err)
	}
	return snapshot.ID, nil
}

// LatestSnapshots returns up to limit snapshots, most recent capture first.
func (s *SnapshotStore) LatestSnapshots(ctx context.Context, limit int) ([]models.Snapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	var snapshots []models.Snapshot
	err := s.db.WithContext(ctx).
		Order("captured_at DESC").
		Limit(limit).
		Find(&snapshots).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list snapshots: %v", ErrStorage, err)
	}
	return snapshots, nil
}

// PreviousSnapshot returns the same seller's snapshot with the greatest id
// strictly below snapshotID, or nil when snapshotID is the first capture.
func (s *SnapshotStore) PreviousSnapshot(ctx context.Context, snapshotID uint) (*models.Snapshot, error) {
	var current models.Snapshot
	if err := s.db.WithContext(ctx).First(&current, snapshotID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: snapshot %d not found", ErrStorage, snapshotID)
		}
		return nil, fmt.Errorf("%w: load snapshot %d: %v", ErrStorage, snapshotID, err)
	}

	var previous models.Snapshot
	err := s.db.WithContext(ctx).
		Where("seller_id = ? AND id < ?", current.SellerID, snapshotID).
		Order("id DESC").
		First(&previous).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: previous of snapshot %d: %v", ErrStorage, snapshotID, err)
	}
	return &previous, nil
}

// ListingsOf returns the listings of one snapshot in insertion order.
func (s *SnapshotStore) ListingsOf(ctx context.Context, snapshotID uint) ([]models.Listing, error) {
	var listings []models.Listing
	err := s.db.WithContext(ctx).
		Where("snapshot_id = ?", snapshotID).
		Order("id ASC").
		Find(&listings).Error
	if err != nil {
		return nil, fmt.Errorf("%w: listings of snapshot %d: %v", ErrStorage, snapshotID, err)
	}
	return listings, nil
}

package store

import (
	"context"
	"fmt"
	"time"

	"listing-audit/internal/models"

	"gorm.io/gorm"
)

// DefaultChangeQueryLimit bounds ChangesSince when the caller passes no limit.
const DefaultChangeQueryLimit = 100

// ChangeWithSnapshot is a change record joined with the capture time of the
// most recent snapshot that still contains the affected item.
type ChangeWithSnapshot struct {
	models.ChangeRecord
	LastSnapshotAt *time.Time `json:"last_snapshot_at"`
}

// ChangeLogStore persists detected change records. Append-only.
type ChangeLogStore struct {
	db *gorm.DB
}

func NewChangeLogStore(db *gorm.DB) *ChangeLogStore {
	return &ChangeLogStore{db: db}
}

// AppendChanges persists a batch of change records in one transaction. A
// failure means none of the batch should be assumed written; there is no
// partial success.
func (s *ChangeLogStore) AppendChanges(ctx context.Context, records []models.ChangeRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]models.ChangeRecord, len(records))
	copy(rows, records)
	for i := range rows {
		rows[i].ID = 0
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("%w: append %d change records: %v", ErrStorage, len(records), err)
	}
	return nil
}

// ChangesSince returns change records detected within the lookback window,
// newest first, each joined with the affected item's most recent snapshot
// capture time. limit <= 0 falls back to DefaultChangeQueryLimit.
func (s *ChangeLogStore) ChangesSince(ctx context.Context, lookback time.Duration, limit int) ([]ChangeWithSnapshot, error) {
	if limit <= 0 {
		limit = DefaultChangeQueryLimit
	}
	since := time.Now().UTC().Add(-lookback)

	var records []models.ChangeRecord
	err := s.db.WithContext(ctx).
		Where("detected_at >= ?", since).
		Order("detected_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("%w: query changes since %s: %v", ErrStorage, since.Format(time.RFC3339), err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	itemIDs := make([]string, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.ItemID]; dup {
			continue
		}
		seen[r.ItemID] = struct{}{}
		itemIDs = append(itemIDs, r.ItemID)
	}

	latest, err := s.latestCaptureByItem(ctx, itemIDs)
	if err != nil {
		return nil, err
	}

	results := make([]ChangeWithSnapshot, len(records))
	for i, r := range records {
		results[i] = ChangeWithSnapshot{ChangeRecord: r}
		if at, ok := latest[r.ItemID]; ok {
			capturedAt := at
			results[i].LastSnapshotAt = &capturedAt
		}
	}
	return results, nil
}

// latestCaptureByItem resolves each item's most recent snapshot capture time.
// Only plain table columns are selected: aggregate expressions lose their
// declared column type and no longer scan as timestamps on every driver.
func (s *ChangeLogStore) latestCaptureByItem(ctx context.Context, itemIDs []string) (map[string]time.Time, error) {
	type itemCapture struct {
		ItemID     string
		CapturedAt time.Time
	}
	var rows []itemCapture
	err := s.db.WithContext(ctx).
		Table("listings").
		Select("listings.item_id AS item_id, snapshots.captured_at AS captured_at").
		Joins("JOIN snapshots ON snapshots.id = listings.snapshot_id").
		Where("listings.item_id IN ?", itemIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: resolve latest snapshots for %d items: %v", ErrStorage, len(itemIDs), err)
	}

	latest := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		if current, ok := latest[row.ItemID]; !ok || row.CapturedAt.After(current) {
			latest[row.ItemID] = row.CapturedAt
		}
	}
	return latest, nil
}

// ChangesOfItem returns an item's change history, newest first.
func (s *ChangeLogStore) ChangesOfItem(ctx context.Context, itemID string, limit int) ([]models.ChangeRecord, error) {
	if limit <= 0 {
		limit = DefaultChangeQueryLimit
	}
	var records []models.ChangeRecord
	err := s.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("detected_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("%w: query changes of item %s: %v", ErrStorage, itemID, err)
	}
	return records, nil
}

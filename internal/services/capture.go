package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"listing-audit/internal/models"
	"listing-audit/internal/store"
)

// ErrSourceUnavailable marks a failed listing fetch. Transient: the whole
// cycle is safe to retry.
var ErrSourceUnavailable = errors.New("listing source unavailable")

// ErrCaptureInFlight is returned when a capture cycle for the same seller is
// already running. Concurrent cycles per seller are unsupported.
var ErrCaptureInFlight = errors.New("capture cycle already in flight for seller")

// Capture cycle phases, reported by CycleError.
const (
	PhaseFetch           = "fetch"
	PhasePersistSnapshot = "persist_snapshot"
	PhaseResolvePrevious = "resolve_previous"
	PhaseLoadPrevious    = "load_previous_listings"
	PhaseDetect          = "detect"
	PhasePersistChanges  = "persist_changes"
)

// CycleError wraps a capture cycle failure with the phase it happened in.
type CycleError struct {
	Phase string
	Err   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("capture cycle failed in phase %s: %v", e.Phase, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

// FetchResult is one pull from the listing source: the normalized listings
// plus the verbatim upstream payload kept for replay and debugging.
type FetchResult struct {
	Listings   []models.Listing
	RawPayload string
}

// ListingSource supplies the current listings of a seller. Retry, paging and
// auth are the implementation's concern; the coordinator only propagates
// failure.
type ListingSource interface {
	FetchListings(ctx context.Context, sellerID string) (*FetchResult, error)
}

// SnapshotStore is the persistence port the coordinator writes snapshots
// through. Implemented by store.SnapshotStore.
type SnapshotStore interface {
	WriteSnapshot(ctx context.Context, sellerID string, listings []models.Listing, rawPayload string) (uint, error)
	PreviousSnapshot(ctx context.Context, snapshotID uint) (*models.Snapshot, error)
	ListingsOf(ctx context.Context, snapshotID uint) ([]models.Listing, error)
}

// ChangeLogStore is the persistence port for detected changes. Implemented by
// store.ChangeLogStore.
type ChangeLogStore interface {
	AppendChanges(ctx context.Context, records []models.ChangeRecord) error
}

var _ SnapshotStore = (*store.SnapshotStore)(nil)
var _ ChangeLogStore = (*store.ChangeLogStore)(nil)

// CaptureResult reports a completed capture cycle.
type CaptureResult struct {
	SnapshotID   uint `json:"snapshot_id"`
	ListingCount int  `json:"listing_count"`
	ChangeCount  int  `json:"change_count"`
}

// Coordinator runs capture cycles: fetch listings, persist the snapshot, diff
// against the previous snapshot, persist the resulting change records.
type Coordinator struct {
	source    ListingSource
	snapshots SnapshotStore
	changes   ChangeLogStore

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewCoordinator(source ListingSource, snapshots SnapshotStore, changes ChangeLogStore) *Coordinator {
	return &Coordinator{
		source:    source,
		snapshots: snapshots,
		changes:   changes,
		inFlight:  make(map[string]struct{}),
	}
}

// CaptureCycle runs one end-to-end cycle for a seller. The first capture for
// a seller establishes a baseline and produces zero change records. A
// snapshot that was durably written is never rolled back: if diffing or
// change persistence fails afterwards, the snapshot stays valid and the error
// reports the failing phase.
func (c *Coordinator) CaptureCycle(ctx context.Context, sellerID string) (*CaptureResult, error) {
	if !c.acquire(sellerID) {
		return nil, fmt.Errorf("%w: %s", ErrCaptureInFlight, sellerID)
	}
	defer c.release(sellerID)

	fetched, err := c.source.FetchListings(ctx, sellerID)
	if err != nil {
		return nil, &CycleError{Phase: PhaseFetch, Err: fmt.Errorf("%w: %v", ErrSourceUnavailable, err)}
	}

	snapshotID, err := c.snapshots.WriteSnapshot(ctx, sellerID, fetched.Listings, fetched.RawPayload)
	if err != nil {
		return nil, &CycleError{Phase: PhasePersistSnapshot, Err: err}
	}
	log.Printf("Captured snapshot %d for seller %s (%d listings)", snapshotID, sellerID, len(fetched.Listings))

	result := &CaptureResult{SnapshotID: snapshotID, ListingCount: len(fetched.Listings)}

	previous, err := c.snapshots.PreviousSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, &CycleError{Phase: PhaseResolvePrevious, Err: err}
	}
	if previous == nil {
		// Baseline capture: nothing to diff against.
		log.Printf("Snapshot %d is the baseline for seller %s, skipping diff", snapshotID, sellerID)
		return result, nil
	}

	previousListings, err := c.snapshots.ListingsOf(ctx, previous.ID)
	if err != nil {
		return nil, &CycleError{Phase: PhaseLoadPrevious, Err: err}
	}

	records, err := Detect(fetched.Listings, previousListings, time.Now().UTC())
	if err != nil {
		return nil, &CycleError{Phase: PhaseDetect, Err: err}
	}

	if err := c.changes.AppendChanges(ctx, records); err != nil {
		return nil, &CycleError{Phase: PhasePersistChanges, Err: err}
	}

	result.ChangeCount = len(records)
	if len(records) > 0 {
		log.Printf("Recorded %d changes for seller %s (snapshot %d vs %d)", len(records), sellerID, snapshotID, previous.ID)
	}
	return result, nil
}

func (c *Coordinator) acquire(sellerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[sellerID]; busy {
		return false
	}
	c.inFlight[sellerID] = struct{}{}
	return true
}

func (c *Coordinator) release(sellerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, sellerID)
}

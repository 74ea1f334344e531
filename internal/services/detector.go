package services

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"listing-audit/internal/models"
)

// priceTolerance is the absolute price delta below which two prices are
// considered equal, independent of price magnitude.
const priceTolerance = 0.01

// Detect compares a snapshot's listing set against its predecessor's and
// returns one change record per detected difference. It is pure and
// deterministic: detectedAt is stamped onto every record rather than read
// from the clock, and the output order is the iteration order of current,
// followed by removed items in previous order.
func Detect(current, previous []models.Listing, detectedAt time.Time) ([]models.ChangeRecord, error) {
	if err := models.ValidateListingSet(current); err != nil {
		return nil, fmt.Errorf("current listing set: %w", err)
	}
	if err := models.ValidateListingSet(previous); err != nil {
		return nil, fmt.Errorf("previous listing set: %w", err)
	}

	prevByItem := make(map[string]models.Listing, len(previous))
	for _, p := range previous {
		prevByItem[p.ItemID] = p
	}

	var records []models.ChangeRecord

	seen := make(map[string]struct{}, len(current))
	for _, c := range current {
		seen[c.ItemID] = struct{}{}

		p, existed := prevByItem[c.ItemID]
		if !existed {
			records = append(records, models.ChangeRecord{
				ItemID:     c.ItemID,
				ChangeType: models.ChangeNew,
				NewValue:   c.Title,
				DetectedAt: detectedAt,
			})
			continue
		}

		before, after := p.SoldCount, c.SoldCount

		if math.Abs(c.Price-p.Price) > priceTolerance {
			rec := models.ChangeRecord{
				ItemID:          c.ItemID,
				ChangeType:      models.ChangePrice,
				PreviousValue:   formatPrice(p.Price),
				NewValue:        formatPrice(c.Price),
				DetectedAt:      detectedAt,
				SoldCountBefore: &before,
				SoldCountAfter:  &after,
			}
			// A previous price of exactly 0 makes the percentage undefined;
			// the record is still emitted with a nil variation.
			if p.Price != 0 {
				pct := round2((c.Price - p.Price) / p.Price * 100)
				rec.PercentVariation = &pct
			}
			records = append(records, rec)
		}

		if c.Title != p.Title {
			records = append(records, models.ChangeRecord{
				ItemID:          c.ItemID,
				ChangeType:      models.ChangeTitle,
				PreviousValue:   p.Title,
				NewValue:        c.Title,
				DetectedAt:      detectedAt,
				SoldCountBefore: &before,
				SoldCountAfter:  &after,
			})
		}

		if c.CategoryID != p.CategoryID {
			records = append(records, models.ChangeRecord{
				ItemID:          c.ItemID,
				ChangeType:      models.ChangeCategory,
				PreviousValue:   p.CategoryID,
				NewValue:        c.CategoryID,
				DetectedAt:      detectedAt,
				SoldCountBefore: &before,
				SoldCountAfter:  &after,
			})
		}

		if c.Status != p.Status {
			records = append(records, models.ChangeRecord{
				ItemID:          c.ItemID,
				ChangeType:      models.ChangePaused,
				PreviousValue:   string(p.Status),
				NewValue:        string(c.Status),
				DetectedAt:      detectedAt,
				SoldCountBefore: &before,
				SoldCountAfter:  &after,
			})
		}
	}

	// Items that vanished from the current snapshot.
	for _, p := range previous {
		if _, still := seen[p.ItemID]; still {
			continue
		}
		before := p.SoldCount
		records = append(records, models.ChangeRecord{
			ItemID:          p.ItemID,
			ChangeType:      models.ChangeRemoved,
			PreviousValue:   p.Title,
			DetectedAt:      detectedAt,
			SoldCountBefore: &before,
		})
	}

	return records, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// formatPrice keeps the shortest exact representation so sub-cent prices
// survive the round trip through the opaque text columns.
func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

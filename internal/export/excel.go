package export

import (
	"fmt"
	"io"
	"time"

	"listing-audit/internal/store"

	"github.com/xuri/excelize/v2"
)

const changeSheet = "Changes"

// WriteChangeReport renders a change-record query result as an xlsx workbook.
func WriteChangeReport(w io.Writer, changes []store.ChangeWithSnapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(changeSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []interface{}{
		"Item", "Change", "Previous", "New", "Variation %",
		"Sold Before", "Sold After", "Detected At", "Last Snapshot",
	}
	if err := f.SetSheetRow(changeSheet, "A1", &headers); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}

	for i, c := range changes {
		row := []interface{}{
			c.ItemID,
			string(c.ChangeType),
			c.PreviousValue,
			c.NewValue,
			floatCell(c.PercentVariation),
			intCell(c.SoldCountBefore),
			intCell(c.SoldCountAfter),
			c.DetectedAt.Format(time.RFC3339),
			timeCell(c.LastSnapshotAt),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(changeSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func floatCell(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func intCell(v *int) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func timeCell(v *time.Time) interface{} {
	if v == nil {
		return ""
	}
	return v.Format(time.RFC3339)
}

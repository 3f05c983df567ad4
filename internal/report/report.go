// Package report exports a counting view as an Excel workbook.
package report

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/roach88/cyclecount/internal/reconcile"
)

const (
	countsSheet  = "Counts"
	summarySheet = "Summary"
)

var header = []any{"Product", "Location", "Expected", "Counted", "Status"}

// Export is the content of one workbook.
type Export struct {
	SessionID  string
	ExportedAt time.Time
	Rows       []reconcile.Row
	Progress   reconcile.Progress
}

// Write renders e as an .xlsx workbook to w.
func Write(w io.Writer, e Export) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", countsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeCounts(f, e.Rows); err != nil {
		return err
	}
	if err := writeSummary(f, e); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WriteFile writes the workbook to path, replacing any existing file.
func WriteFile(path string, e Export) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := Write(out, e); err != nil {
		return err
	}
	slog.Info("report exported", "path", path, "rows", len(e.Rows))
	return nil
}

func writeCounts(f *excelize.File, rows []reconcile.Row) error {
	if err := f.SetSheetRow(countsSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetCellStyle(countsSheet, "A1", "E1", bold); err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetColWidth(countsSheet, "A", "A", 40); err != nil {
		return fmt.Errorf("column width: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		var counted any
		if r.Status != reconcile.Uncounted {
			counted = r.CountedQty.InexactFloat64()
		}
		values := []any{
			r.Product.Title,
			r.Product.Location,
			r.Product.ExpectedQty.InexactFloat64(),
			counted,
			r.Status.String(),
		}
		if err := f.SetSheetRow(countsSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return nil
}

func writeSummary(f *excelize.File, e Export) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("add summary sheet: %w", err)
	}
	lines := [][]any{
		{"Session", e.SessionID},
		{"Exported", e.ExportedAt.UTC().Format(time.RFC3339)},
		{"Counted", e.Progress.Counted},
		{"Total", e.Progress.Total},
		{"Percent", e.Progress.Percent},
	}
	for i, line := range lines {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &line); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}
